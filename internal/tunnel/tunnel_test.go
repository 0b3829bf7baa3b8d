package tunnel

import (
	"context"
	"testing"

	"pgbackup/internal/config"
	"pgbackup/internal/logger"
)

func TestOpenRejectsNilConfig(t *testing.T) {
	if _, err := Open(context.Background(), nil, &logger.NullLogger{}); err == nil {
		t.Fatalf("expected Open to reject a nil tunnel config")
	}
}

func TestOpenRejectsUnreadableKey(t *testing.T) {
	cfg := &config.TunnelConfig{
		SSHHost:    "127.0.0.1",
		SSHUser:    "deploy",
		SSHKeyPath: "/nonexistent/key",
		RemotePort: 5432,
	}
	if _, err := Open(context.Background(), cfg, &logger.NullLogger{}); err == nil {
		t.Fatalf("expected Open to fail reading a nonexistent private key")
	}
}

func TestPortOrDefault(t *testing.T) {
	if got := portOrDefault(0); got != "22" {
		t.Fatalf("portOrDefault(0) = %q, want %q", got, "22")
	}
	if got := portOrDefault(2222); got != "2222" {
		t.Fatalf("portOrDefault(2222) = %q, want %q", got, "2222")
	}
}
