package audit

import (
	"context"
	"sync"
	"time"
)

// Kinds of audit records.
const (
	KindDangerAlert = "DANGER_ALERT"
	KindRiskAlert   = "RISK_ALERT"
	KindRiskAction  = "RISK_ACTION"
)

// Record is one append-only audit entry.
type Record struct {
	ID         string
	Timestamp  time.Time
	Kind       string
	Symbol     string
	Level      string
	Action     string
	PositionID string
	Message    string
	Success    bool
	// Payload is stored as JSON.
	Payload any
}

// Sink persists audit records. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, r Record) error
}

// Compile-time interface checks.
var _ Sink = (*MemorySink)(nil)
var _ Sink = (*SQLiteSink)(nil)
var _ Sink = NopSink{}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Record(context.Context, Record) error { return nil }

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

func (m *MemorySink) Record(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

// Records returns a copy of everything recorded so far.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
