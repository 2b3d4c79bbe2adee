// Package backend wires the configured store, audit sink and archive
// exporter into one bundle the commands can start from.
package backend

import (
	"context"
	"fmt"

	"clubledger/internal/amqp"
	"clubledger/internal/config"
	"clubledger/internal/core"
	exportgoogle "clubledger/internal/export/google"
	exportmemory "clubledger/internal/export/memory"
	"clubledger/internal/ledger"
	"clubledger/internal/log"
	"clubledger/internal/storage"
	"clubledger/internal/storage/memory"
)

// Type selects the persistence backend.
type Type string

const (
	SQLite Type = "sqlite"
	Memory Type = "memory"
)

// IsValid reports whether the backend type is known.
func (t Type) IsValid() bool {
	return t == SQLite || t == Memory
}

// Result is the assembled backend. Cleanup must be called on
// shutdown.
type Result struct {
	Store    ledger.Store
	Audit    ledger.AuditSink
	Exporter ledger.ArchiveExporter
	Cleanup  func() error
}

// Build assembles the backend described by the config. When AMQP is
// unreachable or not configured, audit events are written straight to
// the store instead of the queue.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Result, error) {
	blog := logger.WithComponent(log.ComponentBackend)

	backendType := Type(cfg.DataBackend)
	if !backendType.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	var (
		store   ledger.Store
		cleanup func() error
	)
	switch backendType {
	case SQLite:
		repo, err := storage.NewRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite backend: %w", err)
		}
		store = repo
		cleanup = repo.Close
		blog.Info("initialized sqlite backend", "db_path", cfg.SQLiteDBPath)
	case Memory:
		store = memory.New()
		cleanup = func() error { return nil }
		blog.Info("initialized memory backend")
	}

	var audit ledger.AuditSink
	if backendType == SQLite && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			blog.Warn("AMQP unavailable, audit events go straight to the store", "error", err)
		} else {
			audit = client
			base := cleanup
			cleanup = func() error {
				client.Close()
				return base()
			}
			blog.Info("initialized AMQP audit sink",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}
	if audit == nil {
		audit = &storeSink{store: store}
	}

	var exporter ledger.ArchiveExporter
	if cfg.GoogleSpreadsheetID != "" {
		gexp, err := exportgoogle.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			blog.Warn("Google Sheets exporter unavailable, using in-memory exporter", "error", err)
			exporter = exportmemory.New()
		} else {
			exporter = gexp
			blog.Info("initialized Google Sheets exporter",
				"spreadsheet_id", cfg.GoogleSpreadsheetID,
				"sheet", cfg.GoogleSheetName)
		}
	} else {
		exporter = exportmemory.New()
	}

	return &Result{
		Store:    store,
		Audit:    audit,
		Exporter: exporter,
		Cleanup:  cleanup,
	}, nil
}

// storeSink writes audit events directly to the store, bypassing the
// queue.
type storeSink struct {
	store ledger.AuditStore
}

func (s *storeSink) Publish(ctx context.Context, event core.AuditEvent) error {
	return s.store.InsertAuditEvent(ctx, &event)
}
