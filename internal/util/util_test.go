package util

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
)

func TestCleanOldLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"starx_2024-01-01.log",
		"starx_2024-01-02.log",
		"starx_2024-01-03.log",
		"other.log",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	cleanOldLogs(dir, 2)

	want := map[string]bool{
		"starx_2024-01-01.log": false,
		"starx_2024-01-02.log": true,
		"starx_2024-01-03.log": true,
		"other.log":            true,
	}
	for n, exists := range want {
		if got := FileExists(filepath.Join(dir, n)); got != exists {
			t.Errorf("%s exists = %v, want %v", n, got, exists)
		}
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	closer, err := InitLogger(LogConfig{Level: "debug", Directory: dir})
	if err != nil {
		t.Fatalf("InitLogger() error = %v", err)
	}
	defer closer.Close()

	matches, _ := filepath.Glob(filepath.Join(dir, "starx_*.log"))
	if len(matches) != 1 {
		t.Fatalf("log files = %v, want 1", matches)
	}
}

func TestGetProcessStats(t *testing.T) {
	stats := GetProcessStats()
	if stats.PID != int32(os.Getpid()) || stats.Goroutines == 0 {
		t.Errorf("GetProcessStats() = %+v", stats)
	}
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "certs", "api.crt")
	keyFile := filepath.Join(dir, "certs", "api.key")

	if err := EnsureSelfSignedCert(certFile, keyFile); err != nil {
		t.Fatalf("EnsureSelfSignedCert: %v", err)
	}
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		t.Fatalf("LoadX509KeyPair: %v", err)
	}
	if len(pair.Certificate) != 1 {
		t.Fatalf("chain length = %d", len(pair.Certificate))
	}

	before, _ := os.ReadFile(certFile)
	if err := EnsureSelfSignedCert(certFile, keyFile); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(certFile)
	if string(before) != string(after) {
		t.Error("existing certificate was regenerated")
	}
}
