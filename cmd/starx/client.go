package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/starx-project/starx/internal/connector"
	"github.com/starx-project/starx/internal/util"
)

type clientFlags struct {
	timeout    time.Duration
	clientType string
	user       string
	verbose    bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVarP(&f.timeout, "timeout", "t", 10*time.Second, "Time allowed for connecting and the exchange")
	cmd.Flags().StringVar(&f.clientType, "client-type", connector.DefaultClientType, "Client type sent in the handshake")
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "JSON user data sent in the handshake")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log protocol activity to stderr")
}

func requestCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "request <url> <route> [json]",
		Short: "Send one request and print the response",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := payloadArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			s, err := dialSession(ctx, args[0], &flags)
			if err != nil {
				return err
			}
			defer s.Close()

			resp, err := s.RequestContext(ctx, args[1], payload)
			if err != nil {
				return fmt.Errorf("request %s: %w", args[1], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(resp))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func notifyCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "notify <url> <route> [json]",
		Short: "Send one notify",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := payloadArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			s, err := dialSession(ctx, args[0], &flags)
			if err != nil {
				return err
			}
			// Close runs after the queued notify has been written.
			defer s.Close()

			if err := s.Notify(args[1], payload); err != nil {
				return fmt.Errorf("notify %s: %w", args[1], err)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func payloadArg(args []string) (any, error) {
	if len(args) < 3 {
		return nil, nil
	}
	raw := json.RawMessage(args[2])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON: %s", args[2])
	}
	return raw, nil
}

// dialSession connects without reconnection and waits for the handshake.
func dialSession(ctx context.Context, url string, flags *clientFlags) (*connector.Session, error) {
	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	if _, err := util.InitLogger(util.LogConfig{Level: level, Console: true}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}

	opts := []connector.Option{
		connector.WithClientInfo(flags.clientType, connector.DefaultClientVersion),
		connector.WithLogger(util.ComponentLogger("session")),
	}
	if flags.user != "" {
		if !json.Valid([]byte(flags.user)) {
			return nil, fmt.Errorf("user data is not valid JSON")
		}
		opts = append(opts, connector.WithUser(json.RawMessage(flags.user)))
	}

	s := connector.New(opts...)
	ready := make(chan struct{}, 1)
	failed := make(chan error, 1)
	s.OnAny(func(ev connector.Event) {
		switch ev.Name {
		case connector.EventIOError, connector.EventError:
			err := ev.Err
			if err == nil {
				err = fmt.Errorf("%s", ev.Name)
			}
			select {
			case failed <- err:
			default:
			}
		case connector.EventClose:
			select {
			case failed <- connector.ErrNotConnected:
			default:
			}
		}
	})
	if err := s.Connect(url, func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	}); err != nil {
		s.Close()
		return nil, err
	}

	select {
	case <-ready:
		return s, nil
	case err := <-failed:
		s.Close()
		return nil, fmt.Errorf("connect %s: %w", url, err)
	case <-ctx.Done():
		s.Close()
		return nil, fmt.Errorf("connect %s: %w", url, ctx.Err())
	}
}
