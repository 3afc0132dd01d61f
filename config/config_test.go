package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.OwnerKeyPath != filepath.Join(dir, "owner.key") {
		t.Fatalf("unexpected owner key path %q", cfg.OwnerKeyPath)
	}
	info, err := os.Stat(cfg.OwnerKeyPath)
	if err != nil {
		t.Fatalf("owner key not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("owner key must be private, got %v", info.Mode().Perm())
	}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		t.Fatalf("owner address: %v", err)
	}
	ledger, err := cfg.LedgerIdentity(owner)
	if err != nil {
		t.Fatalf("ledger identity: %v", err)
	}
	if ledger != gethcrypto.CreateAddress(owner, 0) {
		t.Fatalf("ledger identity must derive from owner")
	}
	if cfg.Staking.MinRateBps != 100 || cfg.Staking.MaxRateBps != 1000 || cfg.Staking.BaseRateBps != 400 {
		t.Fatalf("unexpected staking defaults %+v", cfg.Staking)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	reloadedOwner, err := reloaded.OwnerAddress()
	if err != nil || reloadedOwner != owner {
		t.Fatalf("owner changed across reload: %v", err)
	}
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/arkn"
Owner = "0x00000000000000000000000000000000000000a1"
LedgerAddress = "0x00000000000000000000000000000000000000b2"
MaxConnections = 256

[staking]
MinRateBps = 50
MaxRateBps = 2000
BaseRateBps = 600

[ratelimit]
RequestsPerSecond = 5
Burst = 10

[snapshots]
Schedule = "*/5 * * * *"

[[genesis]]
Address = "0x00000000000000000000000000000000000000c3"
Base = "1000000"
ARKN = "25"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" || cfg.DataDir != "/var/lib/arkn" {
		t.Fatalf("unexpected addresses %+v", cfg)
	}
	if cfg.Staking.MinRateBps != 50 || cfg.Staking.MaxRateBps != 2000 || cfg.Staking.BaseRateBps != 600 || cfg.Staking.RewardRateBps != 400 {
		t.Fatalf("unexpected staking section %+v", cfg.Staking)
	}
	if cfg.Indexer.DSN != filepath.Join("/var/lib/arkn", "indexer.db") {
		t.Fatalf("unexpected indexer dsn %q", cfg.Indexer.DSN)
	}
	if cfg.OwnerKeyPath != "" {
		t.Fatalf("explicit owner must not require a key file")
	}
	if len(cfg.Genesis) != 1 || cfg.Genesis[0].ARKN != "25" {
		t.Fatalf("unexpected genesis %+v", cfg.Genesis)
	}
	if cfg.RateLimit.Burst != 10 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.MaxConnections != 256 {
		t.Fatalf("unexpected max connections %d", cfg.MaxConnections)
	}
	if cfg.Idempotency.Path != filepath.Join("/var/lib/arkn", "idempotency.db") || cfg.Idempotency.TTLHours != 24 {
		t.Fatalf("unexpected idempotency section %+v", cfg.Idempotency)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "Bogus = 1\nOwner = \"0x00000000000000000000000000000000000000a1\"\n",
		"zero owner":        "Owner = \"0x0000000000000000000000000000000000000000\"\n",
		"rate outside":      "Owner = \"0x00000000000000000000000000000000000000a1\"\n[staking]\nBaseRateBps = 5000\n",
		"inverted bounds":   "Owner = \"0x00000000000000000000000000000000000000a1\"\n[staking]\nMinRateBps = 900\nMaxRateBps = 200\n",
		"bad schedule":      "Owner = \"0x00000000000000000000000000000000000000a1\"\n[snapshots]\nSchedule = \"never\"\n",
		"negative ttl":      "Owner = \"0x00000000000000000000000000000000000000a1\"\n[idempotency]\nTTLHours = -1\n",
		"bad genesis value": "Owner = \"0x00000000000000000000000000000000000000a1\"\n[[genesis]]\nAddress = \"0x00000000000000000000000000000000000000c3\"\nBase = \"-1\"\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("")
	if err != nil || !amount.IsZero() {
		t.Fatalf("empty amount must be zero: %v", err)
	}
	if _, err := ParseAmount("12abc"); err == nil || !strings.Contains(err.Error(), "12abc") {
		t.Fatalf("expected invalid amount error, got %v", err)
	}
}
