package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// docQueueCapacity is the fixed capacity of the asynchronous document-sink
// queue. Per spec §5 this is never unbounded in production; overflow
// drops the newest record with a warning rather than blocking the match
// loop — the optional sink must never hold up the audit-authoritative
// file sink.
const docQueueCapacity = 10000

// maxBatchSize is the largest batch the background writer inserts/upserts
// at once, grouped by collection.
const maxBatchSize = 50

// docItem is one item queued for the background writer.
type docItem struct {
	collection string
	filter     bson.M // nil for pure inserts
	doc        bson.M
}

// DocSink is the optional, process-wide asynchronous document store. A
// single background goroutine drains a fixed-capacity queue, buffering
// items per collection and flushing a buffer every 250ms or once it holds
// maxBatchSize items; each buffered item is written with its own insert
// or upsert call. Document
// sink errors never propagate to callers — they are logged and dropped;
// the file sink remains authoritative.
type DocSink struct {
	db      *mongo.Database
	logger  *log.Logger
	queue   chan docItem
	done    chan struct{}
	enabled bool
}

// NewDocSink connects to uri and returns a running DocSink. If the store
// is unreachable at startup, the returned sink enters a disabled state:
// all subsequent operations no-op rather than erroring.
func NewDocSink(ctx context.Context, uri, database string, logger *log.Logger) *DocSink {
	sink := &DocSink{
		logger: logger,
		queue:  make(chan docItem, docQueueCapacity),
		done:   make(chan struct{}),
	}

	if uri == "" {
		logger.Println("telemetry: no document store URI configured, document sink disabled")
		close(sink.done)
		return sink
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		logger.Printf("telemetry: failed to connect document store: %v; disabling document sink", err)
		close(sink.done)
		return sink
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		logger.Printf("telemetry: failed to ping document store: %v; disabling document sink", err)
		close(sink.done)
		return sink
	}

	sink.db = client.Database(database)
	sink.enabled = true

	if err := sink.ensureIndexes(connectCtx); err != nil {
		logger.Printf("telemetry: failed to ensure indexes: %v", err)
	}

	go sink.run()
	return sink
}

func (d *DocSink) ensureIndexes(ctx context.Context) error {
	turns := d.db.Collection("turns")
	_, err := turns.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "match_id", Value: 1},
			{Key: "turn_number", Value: 1},
			{Key: "hand_number", Value: 1},
			{Key: "seat_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	matches := d.db.Collection("matches")
	_, err = matches.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "match_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Enabled reports whether the document sink is actually writing.
func (d *DocSink) Enabled() bool { return d.enabled }

func (d *DocSink) run() {
	defer close(d.done)
	buf := make(map[string][]docItem)

	flush := func() {
		for collection, items := range buf {
			d.flushCollection(collection, items)
		}
		buf = make(map[string][]docItem)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case item, ok := <-d.queue:
			if !ok {
				flush()
				return
			}
			buf[item.collection] = append(buf[item.collection], item)
			if len(buf[item.collection]) >= maxBatchSize {
				d.flushCollection(item.collection, buf[item.collection])
				delete(buf, item.collection)
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *DocSink) flushCollection(collection string, items []docItem) {
	if len(items) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coll := d.db.Collection(collection)
	for _, item := range items {
		var err error
		if item.filter != nil {
			opts := options.Update().SetUpsert(true)
			_, err = coll.UpdateOne(ctx, item.filter, bson.M{"$set": item.doc}, opts)
		} else {
			_, err = coll.InsertOne(ctx, item.doc)
		}
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			d.logger.Printf("telemetry: document sink write to %s failed: %v", collection, err)
		}
	}
}

// enqueue pushes item onto the queue, dropping it with a warning if the
// queue is full rather than blocking the caller.
func (d *DocSink) enqueue(item docItem) {
	if !d.enabled {
		return
	}
	select {
	case d.queue <- item:
	default:
		d.logger.Printf("telemetry: document sink queue full, dropping record for collection %s", item.collection)
	}
}

// EnqueueTurn enqueues a turn document, keyed by the compound
// (match_id, turn_number, hand_number, seat_id) so re-ingestion is
// idempotent. promptVerbatim controls whether the prompt is stored in
// full or only as a hash — the document sink defaults to hash-only;
// the file sink always stores verbatim regardless of this setting.
func (d *DocSink) EnqueueTurn(record TurnRecord, promptVerbatim bool) {
	doc := bson.M{
		"match_id":     record.MatchID,
		"turn_number":  record.TurnNumber,
		"hand_number":  record.HandNumber,
		"seat_id":      record.SeatID,
		"agent_id":     record.AgentID,
		"raw_output":   record.RawOutput,
		"parse_success": record.ParseSuccess,
		"violation_kind": record.ViolationKind,
		"ruling":        record.Ruling,
		"input_tokens":  record.InputTokens,
		"output_tokens": record.OutputTokens,
		"latency_ms":    record.LatencyMS,
		"timestamp":     record.Timestamp,
	}
	if promptVerbatim {
		doc["prompt_text"] = record.PromptText
	} else {
		doc["prompt_hash"] = hashPrompt(record.PromptText)
		doc["prompt_chars"] = len(record.PromptText)
	}

	d.enqueue(docItem{
		collection: "turns",
		filter: bson.M{
			"match_id":    record.MatchID,
			"turn_number": record.TurnNumber,
			"hand_number": record.HandNumber,
			"seat_id":     record.SeatID,
		},
		doc: doc,
	})
}

// EnqueueMatch enqueues an upsert-by-match_id document for the finalized
// match. The increment-only update of each involved agent's aggregate
// document in the models collection does not go through the queue: it
// runs synchronously on the caller's goroutine, one UpdateOne per agent
// with a 10-second timeout, and a failure is only logged.
func (d *DocSink) EnqueueMatch(summary MatchSummary, agentsBySeat map[string]string) {
	d.enqueue(docItem{
		collection: "matches",
		filter:     bson.M{"match_id": summary.MatchID},
		doc: bson.M{
			"match_id":     summary.MatchID,
			"final_scores": summary.FinalScores,
			"ruling":       summary.Ruling,
			"total_turns":  summary.TotalTurns,
			"timestamp":    summary.Timestamp,
		},
	})

	for seatID, agentID := range agentsBySeat {
		d.enqueueModelIncrement(agentID, summary, seatID)
	}
}

func (d *DocSink) enqueueModelIncrement(agentID string, summary MatchSummary, seatID string) {
	if !d.enabled {
		return
	}

	outcome := matchOutcomeFor(seatID, summary)
	inc := bson.M{
		"matches_played": 1,
		"wins":           boolToInt(outcome == "win"),
		"losses":         boolToInt(outcome == "loss"),
		"draws":          boolToInt(outcome == "draw"),
	}
	for kind, count := range summary.FidelityReport[seatID].Totals {
		inc["violations."+kind] = count
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := d.db.Collection("models").UpdateOne(ctx,
		bson.M{"model_id": agentID},
		bson.M{
			"$inc": inc,
			"$set": bson.M{"last_played": summary.Timestamp},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		d.logger.Printf("telemetry: model aggregate increment failed for %s: %v", agentID, err)
	}
}

func matchOutcomeFor(seatID string, summary MatchSummary) string {
	myScore, ok := summary.FinalScores[seatID]
	if !ok {
		return "draw"
	}
	best := myScore
	tied := false
	for seat, score := range summary.FinalScores {
		if seat == seatID {
			continue
		}
		if score > best {
			best = score
			tied = false
		} else if score == best {
			tied = true
		}
	}
	switch {
	case myScore < best:
		return "loss"
	case tied:
		return "draw"
	default:
		return "win"
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func hashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Close stops accepting new items and waits for the background writer to
// drain the queue.
func (d *DocSink) Close() {
	if !d.enabled {
		return
	}
	close(d.queue)
	<-d.done
}
