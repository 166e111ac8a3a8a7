package runtime

import (
	"context"
	"testing"

	"github.com/coopfund/backoffice/internal/config"
	"github.com/coopfund/backoffice/pkg/logger"
)

func TestListenAddr(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ServerConfig
		want string
	}{
		{"all-interfaces", config.ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"empty-host", config.ServerConfig{Port: 9000}, ":9000"},
		{"ipv6", config.ServerConfig{Host: "::1", Port: 8443}, "[::1]:8443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ListenAddr(tt.cfg); got != tt.want {
				t.Fatalf("unexpected addr: got %q want %q", got, tt.want)
			}
		})
	}
}

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(config.RedisConfig{Addr: "cache:6379", Password: "pw", DB: 2})
	if opts.Addr != "cache:6379" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.DialTimeout <= 0 {
		t.Fatalf("expected dial timeout to be set")
	}
}

func TestNewApplicationRequiresDSN(t *testing.T) {
	cfg := config.Default()
	cfg.Database.DSN = ""
	if _, err := NewApplication(context.Background(), cfg, logger.Discard(), WithoutHTTP()); err == nil {
		t.Fatalf("expected error for missing dsn")
	}
}
