package redis

import (
	"testing"
	"time"
)

func TestConfig_Options(t *testing.T) {
	opts := Config{
		Addr:        "cache:6379",
		DB:          2,
		PoolSize:    40,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 500 * time.Millisecond,
	}.options()

	if opts.Addr != "cache:6379" || opts.DB != 2 {
		t.Errorf("expected cache:6379 db 2, got: %s db %d", opts.Addr, opts.DB)
	}
	if opts.PoolSize != 40 {
		t.Errorf("expected pool size 40, got: %d", opts.PoolSize)
	}
	if opts.DialTimeout != 2*time.Second || opts.ReadTimeout != 500*time.Millisecond {
		t.Errorf("expected 2s dial and 500ms read, got: %v %v", opts.DialTimeout, opts.ReadTimeout)
	}
	if opts.ClientName != defaultClientName {
		t.Errorf("expected client name %s, got: %s", defaultClientName, opts.ClientName)
	}
}

func TestConfig_OptionsKeepsClientName(t *testing.T) {
	opts := Config{Addr: "cache:6379", ClientName: "portal-eu"}.options()
	if opts.ClientName != "portal-eu" {
		t.Errorf("expected portal-eu, got: %s", opts.ClientName)
	}
}
