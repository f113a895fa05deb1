package rtpscfg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDomainConfigValidFillsDefaults(t *testing.T) {
	c := DomainConfig{DomainId: 0}
	if err := c.Valid(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.VendorId != 0x01AA {
		t.Fatalf("expected default vendor id 0x01AA, got %#x", c.VendorId)
	}
	if c.LeaseDuration != DefaultLeaseDuration {
		t.Fatalf("expected default lease duration, got %s", c.LeaseDuration)
	}
}

func TestDomainConfigRejectsOutOfRangeDomain(t *testing.T) {
	c := DomainConfig{DomainId: MaxDomainId + 1}
	if err := c.Valid(); err == nil {
		t.Fatal("expected error for out-of-range domain id")
	}
}

func TestLoadDomainFromViper(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domain.yaml")
	contents := []byte("domain:\n  domain_id: 3\n  participant_id: 1\n  default_qos:\n    reliability:\n      kind: RELIABLE\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadDomain(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DomainId != 3 || cfg.ParticipantId != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.DefaultEndpointQoS.Reliability.Kind.String() != "RELIABLE" {
		t.Fatalf("expected RELIABLE reliability, got %v", cfg.DefaultEndpointQoS.Reliability.Kind)
	}
}

func TestWatchProfilesReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domain.yaml")
	os.WriteFile(path, []byte("domain:\n  domain_id: 1\n"), 0o644)

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan DomainConfig, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := WatchProfiles(ctx, v, func(cfg DomainConfig, err error) {
		if err == nil {
			reloaded <- cfg
		}
	}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	os.WriteFile(path, []byte("domain:\n  domain_id: 2\n"), 0o644)

	select {
	case cfg := <-reloaded:
		if cfg.DomainId != 2 {
			t.Fatalf("expected reloaded domain_id=2, got %d", cfg.DomainId)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reload notification after file write")
	}
}
