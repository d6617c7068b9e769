package events

import (
	"context"
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register the cgo-free sqlite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS safeguard_events (
	event_id        TEXT PRIMARY KEY,
	timestamp       TIMESTAMP NOT NULL,
	event_type      TEXT NOT NULL,
	project_id      TEXT NOT NULL DEFAULT '',
	message         TEXT NOT NULL,
	source_agent    TEXT NOT NULL DEFAULT '',
	target_agent    TEXT NOT NULL DEFAULT '',
	guardrail_type  TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL DEFAULT '',
	content_preview TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_safeguard_events_ts ON safeguard_events (timestamp);
`

// SQLiteSink writes safeguard events to a local SQLite database. It is the
// single-node alternative to the ClickHouse sink: same async buffer, same
// drop-on-full semantics, plus a daily retention sweep.
type SQLiteSink struct {
	db        *sql.DB
	buffer    chan *Event
	done      chan struct{}
	flushed   chan struct{}
	retention time.Duration // zero disables the sweep
	sched     *cron.Cron
	logger    *zap.Logger
}

// NewSQLiteSink opens (or creates) the database at path and starts the flush
// loop. A non-zero retention schedules a daily prune of older events.
func NewSQLiteSink(path string, retention time.Duration, logger *zap.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The driver is not safe for concurrent writes over multiple conns.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteSink{
		db:        db,
		buffer:    make(chan *Event, bufferSize),
		done:      make(chan struct{}),
		flushed:   make(chan struct{}),
		retention: retention,
		logger:    logger,
	}

	if retention > 0 {
		s.sched = cron.New()
		if _, err := s.sched.AddFunc("@daily", s.prune); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.sched.Start()
	}

	go s.flushLoop()
	return s, nil
}

func (s *SQLiteSink) Send(event *Event) {
	select {
	case s.buffer <- event:
	default:
		s.logger.Warn("sqlite buffer full, dropping event",
			zap.String("event_id", event.ID),
		)
	}
}

func (s *SQLiteSink) Close() {
	if s.sched != nil {
		s.sched.Stop()
	}
	close(s.done)
	<-s.flushed
	_ = s.db.Close()
}

func (s *SQLiteSink) flushLoop() {
	defer close(s.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Event, 0, flushBatch)

	for {
		select {
		case event := <-s.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
		drainLoop:
			for {
				select {
				case event := <-s.buffer:
					batch = append(batch, event)
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *SQLiteSink) flush(evs []*Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("sqlite begin tx failed", zap.Error(err))
		return
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO safeguard_events (
			event_id, timestamp, event_type, project_id, message,
			source_agent, target_agent, guardrail_type, action, content_preview
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		s.logger.Error("sqlite prepare failed", zap.Error(err))
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	for _, e := range evs {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Timestamp, e.Type.String(), e.ProjectID, e.Message,
			e.SourceAgent, e.TargetAgent, e.GuardrailType, e.Action, e.ContentPreview,
		); err != nil {
			s.logger.Error("sqlite insert event failed",
				zap.String("event_id", e.ID),
				zap.Error(err),
			)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite commit failed",
			zap.Int("batch_size", len(evs)),
			zap.Error(err),
		)
	}
}

func (s *SQLiteSink) prune() {
	cutoff := time.Now().Add(-s.retention)
	res, err := s.db.Exec(`DELETE FROM safeguard_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		s.logger.Error("sqlite retention sweep failed", zap.Error(err))
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Info("sqlite retention sweep",
			zap.Int64("deleted", n),
			zap.Time("cutoff", cutoff),
		)
	}
}
