package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/kb"
)

// NewScheduler wires the periodic knowledge base reload. An empty schedule
// disables the job; manual reloads through the API still work.
func NewScheduler(lc fx.Lifecycle, cfg *config.Config, provider *kb.Provider) *cron.Cron {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.DowOptional | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))

	schedule := cfg.KnowledgeBase.ReloadSchedule
	if schedule == "" {
		log.Info().Msg("Knowledge base reload schedule is empty, periodic reload disabled")
		return c
	}

	_, err := c.AddFunc(schedule, func() {
		if err := provider.Reload(); err != nil {
			log.Error().Err(err).Msg("Error during scheduled knowledge base reload")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", schedule).Msg("Failed to add cron job")
		return nil
	}
	log.Info().Str("schedule", schedule).Msg("Scheduled knowledge base reload job")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msg("Starting cron scheduler")
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Stopping cron scheduler...")
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
				log.Info().Msg("Cron scheduler stopped gracefully.")
				return nil
			case <-ctx.Done():
				log.Error().Msg("Context cancelled while waiting for cron scheduler to stop.")
				return ctx.Err()
			}
		},
	})

	return c
}
