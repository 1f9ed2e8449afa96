package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/starx-project/starx/internal/connector"
	"github.com/starx-project/starx/internal/events"
)

func TestCollectorReportsStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := connector.Stats{
		State:     connector.StateConnected,
		Connects:  2,
		Requests:  5,
		Pushes:    9,
		Pending:   1,
		BytesIn:   1024,
		FramesOut: 7,
	}
	NewCollector(reg, func() connector.Stats { return stats })

	expected := `
# HELP starx_session_requests_total Requests sent.
# TYPE starx_session_requests_total counter
starx_session_requests_total 5
# HELP starx_session_pending_requests Requests awaiting a response.
# TYPE starx_session_pending_requests gauge
starx_session_pending_requests 1
# HELP starx_session_state Current session state, 1 for the active state.
# TYPE starx_session_state gauge
starx_session_state{state="awaiting_handshake_ack"} 0
starx_session_state{state="connected"} 1
starx_session_state{state="connecting"} 0
starx_session_state{state="disconnected"} 0
starx_session_state{state="reconnecting"} 0
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"starx_session_requests_total", "starx_session_pending_requests", "starx_session_state")
	if err != nil {
		t.Error(err)
	}
}

func TestCollectorRecordsBusEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, func() connector.Stats { return connector.Stats{} })

	bus := events.NewEventBus()
	c.Attach(bus)
	ctx := context.Background()

	bus.EmitSync(ctx, events.Event{Type: events.EventPush, Payload: events.PushPayload{Route: "onChat"}})
	bus.EmitSync(ctx, events.Event{Type: events.EventPush, Payload: events.PushPayload{Route: "onChat"}})
	bus.EmitSync(ctx, events.Event{Type: events.EventRequestDone, Payload: events.RequestPayload{
		Route: "area.join", Duration: 20 * time.Millisecond,
	}})
	bus.EmitSync(ctx, events.Event{Type: events.EventRequestDone, Payload: events.RequestPayload{
		Route: "area.join", Error: "timeout",
	}})
	bus.Stop()

	if got := testutil.ToFloat64(c.pushesByRoute.WithLabelValues("onChat")); got != 2 {
		t.Errorf("pushes onChat = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(c.requestDuration); got != 2 {
		t.Errorf("request duration series = %d, want 2", got)
	}
}
