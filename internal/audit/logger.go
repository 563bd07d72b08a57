package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/model"
)

// ErrNotFound is returned when no audit record exists for a request id.
var ErrNotFound = errors.New("audit record not found")

// Sink receives a copy of every audit record. Sinks that can also look a
// record up by request id implement Finder.
type Sink interface {
	Publish(ctx context.Context, record model.AuditRecord) error
}

type Finder interface {
	Find(ctx context.Context, requestID string) (*model.AuditRecord, error)
}

// Logger appends every pipeline outcome to a JSONL file and fans it out to
// the configured sinks. Recording never fails the request: failures are
// logged and counted, nothing more.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	sinks   []Sink
	dropped uint64
}

func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*Logger, error) {
	file, err := os.OpenFile(cfg.Audit.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log %s: %w", cfg.Audit.FilePath, err)
	}

	l := &Logger{file: file, path: cfg.Audit.FilePath}

	if cfg.Audit.KafkaEnabled {
		sink, err := NewKafkaSink(lc, cfg)
		if err != nil {
			file.Close()
			return nil, err
		}
		l.sinks = append(l.sinks, sink)
	}
	if cfg.Audit.ElasticEnabled {
		sink, err := NewElasticSink(cfg)
		if err != nil {
			file.Close()
			return nil, err
		}
		l.sinks = append(l.sinks, sink)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info().Str("path", l.path).Msg("Closing audit log")
			return l.Close()
		},
	})

	log.Info().Str("path", cfg.Audit.FilePath).Int("sinks", len(l.sinks)).Msg("Audit logger initialized")
	return l, nil
}

// Record persists one audit record. Errors are swallowed on purpose: the
// audit trail must never take a user request down with it.
func (l *Logger) Record(ctx context.Context, record model.AuditRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		atomic.AddUint64(&l.dropped, 1)
		log.Error().Err(err).Str("request_id", record.RequestID).Msg("Failed to marshal audit record")
		return
	}

	l.mu.Lock()
	_, writeErr := l.file.Write(append(data, '\n'))
	l.mu.Unlock()
	if writeErr != nil {
		atomic.AddUint64(&l.dropped, 1)
		log.Error().Err(writeErr).Str("request_id", record.RequestID).Msg("Failed to append audit record")
	}

	for _, sink := range l.sinks {
		if err := sink.Publish(ctx, record); err != nil {
			atomic.AddUint64(&l.dropped, 1)
			log.Warn().Err(err).Str("request_id", record.RequestID).Msg("Audit sink publish failed")
		}
	}
}

// Find returns the audit record for a request id, preferring a sink that
// indexes records and falling back to a file scan.
func (l *Logger) Find(ctx context.Context, requestID string) (*model.AuditRecord, error) {
	for _, sink := range l.sinks {
		finder, ok := sink.(Finder)
		if !ok {
			continue
		}
		record, err := finder.Find(ctx, requestID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("request_id", requestID).Msg("Audit sink lookup failed, falling back to file scan")
		}
	}
	return l.findInFile(requestID)
}

func (l *Logger) findInFile(requestID string) (*model.AuditRecord, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var found *model.AuditRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.RequestID == requestID {
			// Keep scanning: the newest entry for the id wins.
			copied := record
			found = &copied
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Dropped reports how many records could not be fully persisted.
func (l *Logger) Dropped() uint64 {
	return atomic.LoadUint64(&l.dropped)
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
