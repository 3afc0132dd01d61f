package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"arkenstone/crypto"
)

const (
	defaultListenAddress = ":8545"
	defaultDataDir       = "./arkn-data"
	defaultEnvironment   = "local"
	defaultBaseSymbol    = "BASE"
	defaultJWTSecretEnv  = "STAKINGD_JWT_SECRET"
	defaultIssuer        = "arkenstone"
	defaultSnapshotCron  = "@every 1m"
	ownerKeyFile         = "owner.key"
	defaultIdemTTLHours  = 24
)

// Config is the stakingd node configuration.
type Config struct {
	ListenAddress string          `toml:"ListenAddress"`
	DataDir       string          `toml:"DataDir"`
	Environment   string          `toml:"Environment"`
	Owner         string          `toml:"Owner"`
	OwnerKeyPath  string          `toml:"OwnerKeyPath"`
	LedgerAddress string          `toml:"LedgerAddress"`
	BaseSymbol    string          `toml:"BaseSymbol"`
	Staking       StakingConfig   `toml:"staking"`
	Auth          AuthConfig      `toml:"auth"`
	Log           LogConfig       `toml:"log"`
	Telemetry     TelemetryConfig `toml:"telemetry"`
	Indexer       IndexerConfig   `toml:"indexer"`
	Snapshots     SnapshotConfig  `toml:"snapshots"`
	RateLimit     RateLimitConfig `toml:"ratelimit"`
	Idempotency   IdemConfig      `toml:"idempotency"`
	Genesis       []Allocation    `toml:"genesis"`

	// MaxConnections caps concurrent API connections; zero is unlimited.
	MaxConnections int `toml:"MaxConnections"`
}

// StakingConfig bounds and seeds the pool rates, in basis points.
type StakingConfig struct {
	MinRateBps    uint64 `toml:"MinRateBps"`
	MaxRateBps    uint64 `toml:"MaxRateBps"`
	BaseRateBps   uint64 `toml:"BaseRateBps"`
	RewardRateBps uint64 `toml:"RewardRateBps"`
}

// AuthConfig configures HMAC JWT verification for the HTTP API.
type AuthConfig struct {
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	Issuer       string `toml:"Issuer"`
	Audience     string `toml:"Audience"`
}

// LogConfig enables an additional rotating file sink.
type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// TelemetryConfig points the OTLP trace exporter at a collector. An empty
// endpoint disables tracing.
type TelemetryConfig struct {
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers"`
}

// IndexerConfig selects the SQLite database holding emitted records.
type IndexerConfig struct {
	DSN string `toml:"DSN"`
}

// SnapshotConfig schedules periodic TVL snapshots.
type SnapshotConfig struct {
	Schedule string `toml:"Schedule"`
	Disabled bool   `toml:"Disabled"`
}

// RateLimitConfig throttles API calls per client.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// IdemConfig configures the Bolt store replaying mutating API responses.
type IdemConfig struct {
	Disabled bool   `toml:"Disabled"`
	Path     string `toml:"Path"`
	TTLHours int    `toml:"TTLHours"`
}

// Allocation credits starting balances on first boot.
type Allocation struct {
	Address string `toml:"Address"`
	Base    string `toml:"Base"`
	ARKN    string `toml:"ARKN"`
}

// Load loads the configuration from the given path, creating a default
// configuration and owner key when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}

	cfg.normalize(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize(path string) {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.Environment == "" {
		cfg.Environment = defaultEnvironment
	}
	cfg.Owner = strings.TrimSpace(cfg.Owner)
	cfg.LedgerAddress = strings.TrimSpace(cfg.LedgerAddress)
	cfg.OwnerKeyPath = strings.TrimSpace(cfg.OwnerKeyPath)
	if cfg.OwnerKeyPath == "" && cfg.Owner == "" {
		cfg.OwnerKeyPath = defaultOwnerKeyPath(path)
	}
	cfg.BaseSymbol = strings.ToUpper(strings.TrimSpace(cfg.BaseSymbol))
	if cfg.BaseSymbol == "" {
		cfg.BaseSymbol = defaultBaseSymbol
	}
	if cfg.Staking.MinRateBps == 0 && cfg.Staking.MaxRateBps == 0 {
		cfg.Staking.MinRateBps, cfg.Staking.MaxRateBps = 100, 1000
	}
	if cfg.Staking.BaseRateBps == 0 {
		cfg.Staking.BaseRateBps = 400
	}
	if cfg.Staking.RewardRateBps == 0 {
		cfg.Staking.RewardRateBps = 400
	}
	cfg.Auth.JWTSecretEnv = strings.TrimSpace(cfg.Auth.JWTSecretEnv)
	if cfg.Auth.JWTSecretEnv == "" {
		cfg.Auth.JWTSecretEnv = defaultJWTSecretEnv
	}
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = defaultIssuer
	}
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	cfg.Indexer.DSN = strings.TrimSpace(cfg.Indexer.DSN)
	if cfg.Indexer.DSN == "" {
		cfg.Indexer.DSN = filepath.Join(cfg.DataDir, "indexer.db")
	}
	cfg.Snapshots.Schedule = strings.TrimSpace(cfg.Snapshots.Schedule)
	if cfg.Snapshots.Schedule == "" {
		cfg.Snapshots.Schedule = defaultSnapshotCron
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 40
	}
	cfg.Idempotency.Path = strings.TrimSpace(cfg.Idempotency.Path)
	if cfg.Idempotency.Path == "" {
		cfg.Idempotency.Path = filepath.Join(cfg.DataDir, "idempotency.db")
	}
	if cfg.Idempotency.TTLHours == 0 {
		cfg.Idempotency.TTLHours = defaultIdemTTLHours
	}
}

// OwnerAddress resolves the rate administrator, reading the owner key when
// no explicit address is configured.
func (cfg *Config) OwnerAddress() (common.Address, error) {
	if cfg.Owner != "" {
		return crypto.ParseAddress(cfg.Owner)
	}
	key, err := cfg.LoadOwnerKey()
	if err != nil {
		return common.Address{}, err
	}
	return key.Address(), nil
}

// LoadOwnerKey reads the hex-encoded owner key from OwnerKeyPath.
func (cfg *Config) LoadOwnerKey() (*crypto.PrivateKey, error) {
	if cfg.OwnerKeyPath == "" {
		return nil, fmt.Errorf("config: owner key path not configured")
	}
	raw, err := os.ReadFile(cfg.OwnerKeyPath)
	if err != nil {
		return nil, fmt.Errorf("config: read owner key: %w", err)
	}
	return crypto.PrivateKeyFromHex(strings.TrimSpace(string(raw)))
}

// LedgerIdentity returns the configured ledger address or derives one from
// the owner the way a contract address is derived from its deployer.
func (cfg *Config) LedgerIdentity(owner common.Address) (common.Address, error) {
	if cfg.LedgerAddress != "" {
		return crypto.ParseAddress(cfg.LedgerAddress)
	}
	return gethcrypto.CreateAddress(owner, 0), nil
}

// createDefault creates and saves a default configuration file together
// with a fresh owner key.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keyPath := defaultOwnerKeyPath(path)
	if err := writeKey(keyPath, key); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress: defaultListenAddress,
		DataDir:       defaultDataDir,
		Environment:   defaultEnvironment,
		OwnerKeyPath:  keyPath,
		BaseSymbol:    defaultBaseSymbol,
	}
	cfg.normalize(path)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeKey(path string, key *crypto.PrivateKey) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(hexutil.Encode(key.Bytes())+"\n"), 0o600)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultOwnerKeyPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, ownerKeyFile)
}
