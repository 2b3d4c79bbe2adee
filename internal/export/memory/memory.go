// Package memory holds an in-process archive exporter used by tests
// and by deployments without a spreadsheet configured.
package memory

import (
	"context"
	"sync"

	"clubledger/internal/ledger"
)

type Exporter struct {
	mu      sync.Mutex
	exports []*ledger.ArchiveDetails
}

var _ ledger.ArchiveExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

// ExportYear keeps the exported details in memory.
func (e *Exporter) ExportYear(_ context.Context, details *ledger.ArchiveDetails) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exports = append(e.exports, details)
	return nil
}

// Exports returns everything exported so far.
func (e *Exporter) Exports() []*ledger.ArchiveDetails {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*ledger.ArchiveDetails, len(e.exports))
	copy(out, e.exports)
	return out
}
