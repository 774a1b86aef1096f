package storage

import (
	"context"
	"time"

	"github.com/masahif/dataexplore/internal/crawler"
)

// EventLog is an event sink that appends every event of one run to SQLite
type EventLog struct {
	store *SQLiteStorage
	runID string
}

// NewEventLog starts a new run in store
func NewEventLog(ctx context.Context, store *SQLiteStorage, seedURL, targetDomain, userAgent string) (*EventLog, error) {
	runID, err := store.BeginRun(ctx, seedURL, targetDomain, userAgent, time.Now())
	if err != nil {
		return nil, err
	}
	return &EventLog{store: store, runID: runID}, nil
}

// RunID returns the ID of the run being recorded
func (l *EventLog) RunID() string {
	return l.runID
}

// Consume stores evt. The write is not cancelled with ctx so the event
// that was in flight when the crawl was interrupted is still recorded.
func (l *EventLog) Consume(ctx context.Context, evt crawler.CrawlEvent) error {
	return l.store.SaveEvent(context.WithoutCancel(ctx), l.runID, evt)
}

// Finish stores the run summary
func (l *EventLog) Finish(ctx context.Context, stats crawler.CrawlStats) error {
	return l.store.FinishRun(ctx, l.runID, stats, time.Now())
}
