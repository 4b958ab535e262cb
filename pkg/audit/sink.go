package audit

import "context"

// Sink is an append-only audit destination
type Sink interface {
	// Append durably stores entry
	Append(ctx context.Context, entry *Entry) error

	// Close flushes and releases the sink
	Close() error
}

// Searcher is implemented by sinks that can query what they stored
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*Entry, error)
}

type noOpSink struct{}

// NewNoOpSink returns a sink that drops every entry
func NewNoOpSink() Sink {
	return noOpSink{}
}

func (noOpSink) Append(context.Context, *Entry) error { return nil }

func (noOpSink) Close() error { return nil }
