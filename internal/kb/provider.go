package kb

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"power-text2sql-backend/config"
)

// Provider hands out the current immutable index snapshot. A reload builds a
// fresh index from the catalogs and swaps the pointer atomically, so
// in-flight requests keep the snapshot they started with.
type Provider struct {
	cfg     config.KnowledgeBaseConfig
	current atomic.Pointer[Index]
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	idx, err := Load(cfg.KnowledgeBase)
	if err != nil {
		return nil, err
	}
	p := &Provider{cfg: cfg.KnowledgeBase}
	p.current.Store(idx)
	return p, nil
}

// Current returns the snapshot every component of one request should share.
func (p *Provider) Current() *Index {
	return p.current.Load()
}

// Reload rebuilds the index from disk. On failure the previous snapshot
// stays in place.
func (p *Provider) Reload() error {
	idx, err := Load(p.cfg)
	if err != nil {
		log.Error().Err(err).Msg("Knowledge base reload failed, keeping previous snapshot")
		return err
	}
	p.current.Store(idx)
	log.Info().Msg("Knowledge base snapshot reloaded")
	return nil
}
