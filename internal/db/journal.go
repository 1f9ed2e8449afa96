package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/starx-project/starx/internal/events"
)

// Journal entry kinds besides the lifecycle event types.
const (
	KindPush    = "push"
	KindRequest = "request"
	KindNotify  = "notify"
)

// DefaultQueryLimit caps Query when no limit is given.
const DefaultQueryLimit = 100

// Entry is one journaled record.
type Entry struct {
	ID       int64         `json:"id"`
	Time     time.Time     `json:"time"`
	Kind     string        `json:"kind"`
	Route    string        `json:"route,omitempty"`
	Body     string        `json:"body,omitempty"`
	Response string        `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Query filters journal lookups. Zero fields match everything.
type Query struct {
	Limit int
	Kind  string
	Route string
	Since time.Time
}

// Journal records session traffic published on the event bus.
type Journal struct {
	db           *Database
	maxBodyBytes int
}

// OpenJournal opens the journal database at path and creates its schema.
// Bodies longer than maxBodyBytes are truncated; zero keeps them whole.
func OpenJournal(path string, maxBodyBytes int) (*Journal, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}

	j := &Journal{db: database, maxBodyBytes: maxBodyBytes}
	if err := j.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}
	return j, nil
}

var journalMigrations = []Migration{
	{
		Name: "create journal",
		SQL: `CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			route TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			response TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_ns INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_journal_ts ON journal(ts);`,
	},
	{
		Name: "index route and kind",
		SQL: `CREATE INDEX IF NOT EXISTS idx_journal_route ON journal(route, ts);
		CREATE INDEX IF NOT EXISTS idx_journal_kind ON journal(kind, ts);`,
	},
}

func (j *Journal) migrate() error {
	return j.db.Migrate(journalMigrations)
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e. A zero Time is set to now.
func (j *Journal) Record(e Entry) (int64, error) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	res, err := j.db.Exec(
		`INSERT INTO journal (ts, kind, route, body, response, error, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UnixNano(), e.Kind, e.Route,
		j.truncate(e.Body), j.truncate(e.Response), e.Error, int64(e.Duration),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record %s entry: %w", e.Kind, err)
	}
	return res.LastInsertId()
}

// Query returns matching entries, newest first.
func (j *Journal) Query(q Query) ([]Entry, error) {
	var where []string
	var args []interface{}

	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}
	if q.Route != "" {
		where = append(where, "route = ?")
		args = append(args, q.Route)
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixNano())
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := "SELECT id, ts, kind, route, body, response, error, duration_ns FROM journal"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts, dur int64
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.Route, &e.Body, &e.Response, &e.Error, &dur); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.Time = time.Unix(0, ts)
		e.Duration = time.Duration(dur)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored entries.
func (j *Journal) Count() (int64, error) {
	var n int64
	if err := j.db.QueryRow("SELECT COUNT(*) FROM journal").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal: %w", err)
	}
	return n, nil
}

// Prune deletes entries older than cutoff and returns how many went.
func (j *Journal) Prune(cutoff time.Time) (int64, error) {
	var removed int64
	err := j.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM journal WHERE ts < ?", cutoff.UnixNano())
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("journal pruned")
	}
	return removed, nil
}

// Attach subscribes the journal to every event on bus.
func (j *Journal) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventAny, "journal", j.handleEvent)
}

func (j *Journal) handleEvent(_ context.Context, ev events.Event) error {
	e, ok := entryFromEvent(ev)
	if !ok {
		return nil
	}
	_, err := j.Record(e)
	return err
}

// entryFromEvent maps a bus event to a journal entry. Events that are not
// session traffic are skipped.
func entryFromEvent(ev events.Event) (Entry, bool) {
	e := Entry{Time: ev.Time}

	switch p := ev.Payload.(type) {
	case events.PushPayload:
		e.Kind = KindPush
		e.Route = p.Route
		e.Body = string(p.Body)
	case events.RequestPayload:
		e.Kind = KindRequest
		if ev.Type == events.EventNotifySent {
			e.Kind = KindNotify
		}
		e.Route = p.Route
		e.Body = string(p.Request)
		e.Response = string(p.Response)
		e.Error = p.Error
		e.Duration = p.Duration
	case events.LifecyclePayload:
		e.Kind = string(ev.Type)
		e.Error = p.Error
		data, err := json.Marshal(p)
		if err != nil {
			return Entry{}, false
		}
		e.Body = string(data)
	default:
		return Entry{}, false
	}
	return e, true
}

func (j *Journal) truncate(s string) string {
	if j.maxBodyBytes <= 0 || len(s) <= j.maxBodyBytes {
		return s
	}
	// Cut on a rune boundary so the stored text stays valid UTF-8.
	n := j.maxBodyBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
