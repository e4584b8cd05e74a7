package telemetry

import (
	"context"
	"fmt"
	"log"
)

// Config configures a Logger for a single match.
type Config struct {
	// Dir is the directory the per-match JSONL file is written under.
	Dir string

	// StoreURI is the optional document-store connection string. Empty
	// disables the document sink entirely.
	StoreURI string

	// StoreDatabase names the document-store database.
	StoreDatabase string

	// PromptVerbatimInStore controls whether the document sink stores
	// prompts in full or hash-only. The file sink always stores
	// verbatim regardless of this setting.
	PromptVerbatimInStore bool
}

// Logger is the per-match telemetry façade: every turn and the final
// match summary pass through here. Callers obtain a Logger via Open and
// defer Close, which is safe to call multiple times and after a panic
// recovery. Close only releases the file sink and writes no summary: a
// match's log gets its summary only when the caller reaches FinalizeMatch
// (the orchestrator's match runner does so on every exit path except a
// failed turn-log write).
type Logger struct {
	cfg     Config
	matchID string
	log     *log.Logger

	file    *FileSink
	doc     *DocSink
	closed  bool
}

// Open acquires a Logger scoped to one match. The file sink must open
// successfully or Open fails outright — the audit trail is mandatory.
// doc is the process-wide document sink (see OpenDocSink), shared across
// every match's Logger rather than reconnected per match: a single
// background writer draining a single queue, per spec §3.3/§4.6/§5.
func Open(ctx context.Context, cfg Config, matchID string, logger *log.Logger, doc *DocSink) (*Logger, error) {
	file, err := NewFileSink(cfg.Dir, matchID)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file sink: %w", err)
	}

	return &Logger{
		cfg:     cfg,
		matchID: matchID,
		log:     logger,
		file:    file,
		doc:     doc,
	}, nil
}

// OpenDocSink connects the process-wide document sink once, per cfg.
// Callers (the CLI entrypoint, or an orchestrator's constructor) hold the
// result for the lifetime of the process and pass it to every Open call;
// Close should be called exactly once, after every match has finished.
func OpenDocSink(ctx context.Context, cfg Config, logger *log.Logger) *DocSink {
	return NewDocSink(ctx, cfg.StoreURI, cfg.StoreDatabase, logger)
}

// LogTurn records one turn-level decision attempt. File-sink failures
// are returned to the caller — the orchestrator treats them as fatal,
// per the spec's "audit trail must never be silently incomplete"
// invariant. Document-sink failures never surface here.
func (l *Logger) LogTurn(record TurnRecord) error {
	record.RecordType = "turn"
	record.MatchID = l.matchID

	if err := l.file.WriteRecord(record); err != nil {
		return fmt.Errorf("telemetry: write turn record: %w", err)
	}
	l.doc.EnqueueTurn(record, l.cfg.PromptVerbatimInStore)
	return nil
}

// FinalizeMatch writes the closing MatchSummary record. It must be
// called exactly once per match, even on abnormal termination — callers
// should build the summary from whatever partial state is available
// rather than skip this call.
func (l *Logger) FinalizeMatch(summary MatchSummary, agentsBySeat map[string]string) error {
	summary.RecordType = "match_summary"
	summary.MatchID = l.matchID

	if err := l.file.WriteRecord(summary); err != nil {
		return fmt.Errorf("telemetry: write match summary: %w", err)
	}
	l.doc.EnqueueMatch(summary, agentsBySeat)
	return nil
}

// Close releases the per-match file sink. Safe to call more than once.
// The document sink is process-wide (see OpenDocSink) and outlives any
// one Logger; it is closed exactly once, by whoever opened it, after
// every match has finished — never here.
func (l *Logger) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	return l.file.Close()
}
