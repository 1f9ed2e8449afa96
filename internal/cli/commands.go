// Package cli implements the interactive console of the starx daemon.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/starx-project/starx/internal/config"
	"github.com/starx-project/starx/internal/connector"
	"github.com/starx-project/starx/internal/db"
	"github.com/starx-project/starx/internal/events"
)

// Session is the read-only session view shown by the console.
type Session interface {
	State() connector.State
	URL() string
	Routes() map[string]uint16
	Stats() connector.Stats
	HeartbeatInterval() time.Duration
}

// Relay sends traffic upstream and controls the connection.
type Relay interface {
	Request(ctx context.Context, route string, payload json.RawMessage) (json.RawMessage, error)
	Notify(route string, payload json.RawMessage) error
	Reconnect(url string) error
}

// JournalReader looks up journaled traffic.
type JournalReader interface {
	Query(q db.Query) ([]db.Entry, error)
}

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	session  Session
	relay    Relay
	journal  JournalReader

	out            io.Writer
	requestTimeout time.Duration
}

// NewCLI creates a new CLI handler. journal may be nil.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, session Session, relay Relay, journal JournalReader, out io.Writer) *CLI {
	timeout := time.Duration(cfg.GetAPI().RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CLI{
		cfg:            cfg,
		eventBus:       eventBus,
		session:        session,
		relay:          relay,
		journal:        journal,
		out:            out,
		requestTimeout: timeout,
	}
}

// Start reads commands from in until EOF or ctx is cancelled.
func (c *CLI) Start(ctx context.Context, in io.Reader) {
	fmt.Fprintln(c.out, "\nstarx console ready. Type 'help' for available commands.")
	fmt.Fprintln(c.out, "─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "starx> ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		if err := c.Execute(ctx, strings.ToLower(cmd), strings.TrimSpace(rest)); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// Execute runs a single command. rest is the unparsed remainder of the
// line, so JSON payloads may contain spaces.
func (c *CLI) Execute(ctx context.Context, cmd string, rest string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "routes":
		c.printRoutes()
	case "request", "req":
		return c.cmdRequest(ctx, rest)
	case "notify":
		return c.cmdNotify(rest)
	case "journal", "j":
		return c.cmdJournal(rest)
	case "reconnect":
		return c.cmdReconnect(rest)
	case "setconfig":
		return c.cmdSetConfig(rest)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down starx...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.out, "║                     starx console commands                   ║")
	fmt.Fprintln(c.out, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintln(c.out, "║  status               Show session state and counters        ║")
	fmt.Fprintln(c.out, "║  routes               Show the route dictionary              ║")
	fmt.Fprintln(c.out, "║  request <route> [js] Send a request and print the response  ║")
	fmt.Fprintln(c.out, "║  notify <route> [js]  Send a notify                          ║")
	fmt.Fprintln(c.out, "║  journal [n] [route]  Show recent journal entries            ║")
	fmt.Fprintln(c.out, "║  reconnect [url]      Drop the connection and dial again     ║")
	fmt.Fprintln(c.out, "║  setconfig <k> <v>    Update a session configuration value   ║")
	fmt.Fprintln(c.out, "║  quit                 Shut down starx                        ║")
	fmt.Fprintln(c.out, "║  help                 Show this help message                 ║")
	fmt.Fprintln(c.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.out)
}

// printStatus displays the session state and counters in a table.
func (c *CLI) printStatus() {
	st := c.session.Stats()

	fmt.Fprintf(c.out, "\n  URL:        %s\n", c.session.URL())
	fmt.Fprintf(c.out, "  State:      %s\n", c.session.State())
	fmt.Fprintf(c.out, "  Heartbeat:  %s\n", c.session.HeartbeatInterval())
	fmt.Fprintf(c.out, "  Routes:     %d\n", len(c.session.Routes()))
	fmt.Fprintf(c.out, "  Pending:    %d\n\n", st.Pending)

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Counter", "Value"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for _, row := range []struct {
		name  string
		value uint64
	}{
		{"connects", st.Connects},
		{"reconnects", st.Reconnects},
		{"requests", st.Requests},
		{"responses", st.Responses},
		{"request timeouts", st.RequestTimeouts},
		{"notifies", st.Notifies},
		{"pushes", st.Pushes},
		{"frames in/out", st.FramesIn},
		{"bytes in", st.BytesIn},
		{"bytes out", st.BytesOut},
		{"heartbeats in", st.HeartbeatsIn},
		{"heartbeats out", st.HeartbeatsOut},
		{"decode errors", st.DecodeErrors},
	} {
		value := strconv.FormatUint(row.value, 10)
		if row.name == "frames in/out" {
			value = fmt.Sprintf("%d / %d", st.FramesIn, st.FramesOut)
		}
		tw.Append([]string{row.name, value})
	}
	tw.Render()
	fmt.Fprintln(c.out)
}

// printRoutes lists the route dictionary sorted by code.
func (c *CLI) printRoutes() {
	routes := c.session.Routes()
	if len(routes) == 0 {
		fmt.Fprintln(c.out, "No route dictionary (routes are sent uncompressed)")
		return
	}

	names := make([]string, 0, len(routes))
	for r := range routes {
		names = append(names, r)
	}
	sort.Slice(names, func(i, j int) bool { return routes[names[i]] < routes[names[j]] })

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Code", "Route"})
	tw.SetBorder(true)
	for _, r := range names {
		tw.Append([]string{strconv.Itoa(int(routes[r])), r})
	}
	tw.Render()
}

func (c *CLI) cmdRequest(ctx context.Context, rest string) error {
	route, payload, err := parseRouteArgs(rest, "request <route> [json]")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.relay.Request(ctx, route, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s)\n", resp, time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *CLI) cmdNotify(rest string) error {
	route, payload, err := parseRouteArgs(rest, "notify <route> [json]")
	if err != nil {
		return err
	}
	if st := c.session.State(); st != connector.StateConnected {
		return fmt.Errorf("session is %s", st)
	}
	if err := c.relay.Notify(route, payload); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Notify sent to %s\n", route)
	return nil
}

func (c *CLI) cmdJournal(rest string) error {
	if c.journal == nil {
		return fmt.Errorf("journal is disabled")
	}

	q := db.Query{Limit: 20}
	args := strings.Fields(rest)
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		q.Limit = n
	}
	if len(args) > 1 {
		q.Route = args[1]
	}

	entries, err := c.journal.Query(q)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Time", "Kind", "Route", "Body", "Error"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for _, e := range entries {
		tw.Append([]string{
			e.Time.Format("15:04:05.000"),
			e.Kind,
			e.Route,
			abbreviate(e.Body, 60),
			e.Error,
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdReconnect(rest string) error {
	url := strings.TrimSpace(rest)
	if err := c.relay.Reconnect(url); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Reconnection initiated")
	return nil
}

func (c *CLI) cmdSetConfig(rest string) error {
	key, raw, ok := strings.Cut(rest, " ")
	raw = strings.TrimSpace(raw)
	if !ok || key == "" || raw == "" {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	// Numbers, booleans and objects are taken as JSON, anything else as a
	// plain string.
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	if err := c.cfg.UpdateSessionField(key, value); err != nil {
		return err
	}
	if err := c.cfg.Save(); err != nil {
		return err
	}

	encoded, _ := json.Marshal(value)
	c.eventBus.Emit(context.Background(), events.Event{
		Type:    events.EventConfigChanged,
		Source:  "cli",
		Payload: events.ConfigChangedPayload{Key: key, Value: encoded},
	})

	fmt.Fprintf(c.out, "Config updated: session.%s = %s (applies on restart)\n", key, raw)
	return nil
}

// parseRouteArgs splits "<route> [json]" and validates the payload.
func parseRouteArgs(rest, usage string) (string, json.RawMessage, error) {
	route, payload, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if route == "" {
		return "", nil, fmt.Errorf("usage: %s", usage)
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return route, nil, nil
	}
	if !json.Valid([]byte(payload)) {
		return "", nil, fmt.Errorf("payload is not valid JSON: %s", payload)
	}
	return route, json.RawMessage(payload), nil
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
