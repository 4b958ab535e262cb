// Package audit records every mutating engine operation to an append-only sink.
//
// Sinks:
//
//   - FileSink writes JSON lines and rotates by size
//   - DBSink appends to the postgres audit_log_entries table and supports Search
//   - MultiSink fans an entry out to several sinks
//   - MemorySink keeps entries in process (tests, local runs)
//
// Services never talk to a sink directly. They go through a Recorder, which
// stamps ids and timestamps and turns sink failures into ErrAuditFailed so the
// caller can surface them as warnings without undoing the mutation.
package audit
