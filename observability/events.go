package observability

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/quizd/idgen"
)

// Event is a domain-level record worth keeping across restarts: chain
// started, chain terminal state, answer verdicts.
type Event struct {
	EventType string // e.g. "chain_start", "chain_completed", "chain_failed"
	TaskID    string
	URL       string
	Details   string // optional JSON
	Success   bool
}

// EventSchema creates the event table. Pass to dbopen.WithSchema.
const EventSchema = `
CREATE TABLE IF NOT EXISTS quiz_events (
	event_id   TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	task_id    TEXT NOT NULL,
	url        TEXT,
	details    TEXT,
	success    INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quiz_events_task ON quiz_events (task_id, created_at);
`

// EventLogger persists events asynchronously. A failing store never blocks a
// chain: writes go through a buffered channel and errors are logged via slog.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Event
	stop  chan struct{}
	done  chan struct{}
}

// EventOption configures an EventLogger.
type EventOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates an async event logger. Recommended bufferSize: 256.
func NewEventLogger(db *sql.DB, bufferSize int, opts ...EventOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
		ch:    make(chan *Event, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Log queues an event. Drops (with a warning) if the buffer is full.
func (l *EventLogger) Log(ev Event) {
	select {
	case l.ch <- &ev:
	default:
		slog.Warn("event buffer full, dropping", "event_type", ev.EventType)
	}
}

// Close drains pending events and stops the flush goroutine.
func (l *EventLogger) Close() {
	close(l.stop)
	<-l.done
}

func (l *EventLogger) flushLoop() {
	defer close(l.done)
	for {
		select {
		case ev := <-l.ch:
			l.insert(ev)
		case <-l.stop:
			for {
				select {
				case ev := <-l.ch:
					l.insert(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *EventLogger) insert(ev *Event) {
	_, err := l.db.Exec(`
		INSERT INTO quiz_events (event_id, event_type, task_id, url, details, success, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		l.newID(), ev.EventType, ev.TaskID, ev.URL, ev.Details, ev.Success, time.Now().Unix())
	if err != nil {
		slog.Error("event log failed", "error", err, "event_type", ev.EventType)
	}
}
