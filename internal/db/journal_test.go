package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/starx-project/starx/internal/events"
)

func openTestJournal(t *testing.T, maxBody int) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"), maxBody)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordAndQuery(t *testing.T) {
	j := openTestJournal(t, 0)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Time: base, Kind: KindPush, Route: "chat.onMessage", Body: `{"m":"hi"}`},
		{Time: base.Add(time.Second), Kind: KindRequest, Route: "area.join", Body: `{}`, Response: `{"ok":true}`, Duration: 30 * time.Millisecond},
		{Time: base.Add(2 * time.Second), Kind: KindPush, Route: "chat.onMessage", Body: `{"m":"yo"}`},
		{Time: base.Add(3 * time.Second), Kind: KindNotify, Route: "chat.send"},
	}
	for _, e := range entries {
		if _, err := j.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	tests := []struct {
		name      string
		q         Query
		wantCount int
		wantFirst string
	}{
		{"all", Query{}, 4, KindNotify},
		{"limit", Query{Limit: 2}, 2, KindNotify},
		{"by route", Query{Route: "chat.onMessage"}, 2, `{"m":"yo"}`},
		{"by kind", Query{Kind: KindRequest}, 1, "area.join"},
		{"since", Query{Since: base.Add(2 * time.Second)}, 2, KindNotify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.Query(tt.q)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Fatalf("got %d entries, want %d", len(got), tt.wantCount)
			}
			first := got[0]
			if first.Kind != tt.wantFirst && first.Route != tt.wantFirst && first.Body != tt.wantFirst {
				t.Errorf("first entry = %+v, want match for %q", first, tt.wantFirst)
			}
		})
	}

	req, err := j.Query(Query{Kind: KindRequest})
	if err != nil {
		t.Fatal(err)
	}
	if req[0].Duration != 30*time.Millisecond || req[0].Response != `{"ok":true}` || !req[0].Time.Equal(base.Add(time.Second)) {
		t.Errorf("request entry = %+v", req[0])
	}
}

func TestJournalPrune(t *testing.T) {
	j := openTestJournal(t, 0)
	now := time.Now()

	for _, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Hour} {
		if _, err := j.Record(Entry{Time: now.Add(-age), Kind: KindPush, Route: "r"}); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := j.Prune(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if n, _ := j.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestJournalTruncatesBodies(t *testing.T) {
	j := openTestJournal(t, 4)
	if _, err := j.Record(Entry{Kind: KindPush, Body: "0123456789"}); err != nil {
		t.Fatal(err)
	}
	got, err := j.Query(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Body != "0123" {
		t.Errorf("Body = %q, want 0123", got[0].Body)
	}
	if got[0].Time.IsZero() {
		t.Error("zero time not replaced")
	}
}

func TestJournalRecordsBusEvents(t *testing.T) {
	j := openTestJournal(t, 0)
	bus := events.NewEventBus()
	j.Attach(bus)

	ctx := context.Background()
	emit := func(typ events.EventType, payload interface{}) {
		if err := bus.EmitSync(ctx, events.Event{Type: typ, Source: "test", Payload: payload}); err != nil {
			t.Fatalf("EmitSync(%s): %v", typ, err)
		}
	}

	emit(events.EventPush, events.PushPayload{Route: "onChat", Body: json.RawMessage(`{"a":1}`)})
	emit(events.EventRequestDone, events.RequestPayload{Route: "area.join", Error: "request timed out"})
	emit(events.EventNotifySent, events.RequestPayload{Route: "chat.send", Request: json.RawMessage(`{}`)})
	emit(events.EventSessionDisconnected, events.LifecyclePayload{State: "disconnected"})
	emit(events.EventShutdown, nil)
	bus.Stop()

	all, err := j.Query(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("recorded %d entries, want 4: %+v", len(all), all)
	}

	kinds := map[string]Entry{}
	for _, e := range all {
		kinds[e.Kind] = e
	}
	if kinds[KindPush].Body != `{"a":1}` {
		t.Errorf("push = %+v", kinds[KindPush])
	}
	if kinds[KindRequest].Error != "request timed out" {
		t.Errorf("request = %+v", kinds[KindRequest])
	}
	if kinds[KindNotify].Route != "chat.send" {
		t.Errorf("notify = %+v", kinds[KindNotify])
	}
	if _, ok := kinds[string(events.EventSessionDisconnected)]; !ok {
		t.Errorf("lifecycle entry missing: %+v", kinds)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenJournal(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Record(Entry{Kind: KindPush, Route: "a"}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	j, err = OpenJournal(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	v, err := j.db.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != len(journalMigrations) {
		t.Errorf("schema version = %d, want %d", v, len(journalMigrations))
	}
	if n, _ := j.Count(); n != 1 {
		t.Errorf("count after reopen = %d, want 1", n)
	}
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	d, err := NewDatabase(filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if _, err := d.Exec("PRAGMA user_version = 9"); err != nil {
		t.Fatal(err)
	}
	if err := d.Migrate(journalMigrations); err == nil {
		t.Fatal("expected error for a newer schema")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name string
		max  int
		in   string
		want string
	}{
		{"ascii", 4, "0123456789", "0123"},
		{"fits", 16, "héllo", "héllo"},
		{"split two-byte rune", 2, "aé", "a"},
		{"split three-byte rune", 4, "ab€c", "ab"},
		{"boundary", 5, "ab€c", "ab€"},
		{"unlimited", 0, "€€€", "€€€"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &Journal{maxBodyBytes: tt.max}
			got := j.truncate(tt.in)
			if got != tt.want {
				t.Errorf("truncate(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q) = %q is not valid UTF-8", tt.in, got)
			}
		})
	}
}
