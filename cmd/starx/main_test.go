package main

import (
	"context"
	"errors"
	"testing"
)

func TestPayloadArg(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"no payload", []string{"ws://h", "a.b"}, "", false},
		{"object", []string{"ws://h", "a.b", `{"x":1}`}, `{"x":1}`, false},
		{"invalid", []string{"ws://h", "a.b", `{x`}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := payloadArg(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want == "" {
				if got != nil && !tt.wantErr {
					t.Fatalf("got %v, want nil", got)
				}
				return
			}
			raw, ok := got.(interface{ MarshalJSON() ([]byte, error) })
			if !ok {
				t.Fatalf("payload type %T", got)
			}
			b, _ := raw.MarshalJSON()
			if string(b) != tt.want {
				t.Errorf("payload = %s, want %s", b, tt.want)
			}
		})
	}
}

func TestStartWithRetry(t *testing.T) {
	calls := 0
	err := startWithRetry(context.Background(), "test", func(context.Context) error {
		calls++
		return nil
	}, 3)
	if err != nil || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = startWithRetry(ctx, "test", func(context.Context) error {
		return errors.New("bind")
	}, 3)
	if err != nil {
		t.Fatalf("cancelled context should stop retries quietly, got %v", err)
	}
}
