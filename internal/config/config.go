package config

import (
	"errors"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Fleet     FleetConfig     `mapstructure:"fleet"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadOnly       bool          `mapstructure:"read_only"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type AuditConfig struct {
	LogDir    string        `mapstructure:"log_dir"`
	Retention time.Duration `mapstructure:"retention"`
}

type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

// PathsConfig holds the on-disk layout. Everything is relative to BotsRoot unless absolute.
type PathsConfig struct {
	BotsRoot      string `mapstructure:"bots_root"`
	Credentials   string `mapstructure:"credentials"`
	MasterAccount string `mapstructure:"master_account"`
	Instances     string `mapstructure:"instances"`
	Conf          string `mapstructure:"conf"`
	Data          string `mapstructure:"data"`
	Archive       string `mapstructure:"archive"`
	// Host-side paths handed to the container runtime for bind mounts.
	HostBotsPath  string `mapstructure:"host_bots_path"`
	HostCertsPath string `mapstructure:"host_certs_path"`
}

type AccountsConfig struct {
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	DumpInterval   time.Duration `mapstructure:"dump_interval"`
	PriceTimeout   time.Duration `mapstructure:"price_timeout"`
	DefaultQuote   string        `mapstructure:"default_quote"`
	BannedTokens   []string      `mapstructure:"banned_tokens"`
	HistoryFile    string        `mapstructure:"history_file"`
}

type WalletConfig struct {
	SecretKeyPath string `mapstructure:"secret_key_path"`
	Chain         string `mapstructure:"chain"`
}

type FleetConfig struct {
	Image             string        `mapstructure:"image"`
	WorkerMarker      string        `mapstructure:"worker_marker"`
	BrokerMarker      string        `mapstructure:"broker_marker"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ConfigPassword    string        `mapstructure:"config_password"`
	GatewayCertPath   string        `mapstructure:"gateway_cert_path"`
	GatewayCertPass   string        `mapstructure:"gateway_cert_passphrase"`
	GatewayHost       string        `mapstructure:"gateway_host"`
	GatewayPort       string        `mapstructure:"gateway_port"`
	CertsPath         string        `mapstructure:"certs_path"`
	NetworkMode       string        `mapstructure:"network_mode"`
}

type BrokerConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type GatewayConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Chain     string        `mapstructure:"chain"`
	Network   string        `mapstructure:"network"`
	Connector string        `mapstructure:"connector"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	// .env is optional; real env vars still win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Println("No .env file loaded:", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// e.g. BOTFLEET_BROKER_ADDR
	v.SetEnvPrefix("botfleet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.resolvePaths()
	return &cfg
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.idempotency_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("rate_limit.qps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("paths.bots_root", "bots")
	v.SetDefault("paths.credentials", "credentials")
	v.SetDefault("paths.master_account", "master_account")
	v.SetDefault("paths.instances", "instances")
	v.SetDefault("paths.conf", "conf")
	v.SetDefault("paths.data", "data")
	v.SetDefault("paths.archive", "archived")
	v.SetDefault("paths.host_bots_path", "./bots")
	v.SetDefault("paths.host_certs_path", "./certs")

	v.SetDefault("accounts.update_interval", time.Minute)
	v.SetDefault("accounts.dump_interval", time.Minute)
	v.SetDefault("accounts.price_timeout", 5*time.Second)
	v.SetDefault("accounts.default_quote", "USDC")
	v.SetDefault("accounts.banned_tokens", []string{"NAV", "ARS", "ETHW"})
	v.SetDefault("accounts.history_file", "account_state_history.json")

	v.SetDefault("wallet.secret_key_path", "secret_key.txt")
	v.SetDefault("wallet.chain", "solana")

	v.SetDefault("fleet.image", "hummingbot/hummingbot:latest")
	v.SetDefault("fleet.worker_marker", "hummingbot")
	v.SetDefault("fleet.broker_marker", "broker")
	v.SetDefault("fleet.reconcile_interval", time.Second)
	v.SetDefault("fleet.gateway_host", "gateway")
	v.SetDefault("fleet.gateway_port", "15888")
	v.SetDefault("fleet.certs_path", "/certs")
	v.SetDefault("fleet.network_mode", "host")

	v.SetDefault("broker.addr", "localhost:6379")
	v.SetDefault("broker.topic_prefix", "hbot")
	v.SetDefault("broker.command_timeout", 10*time.Second)

	v.SetDefault("gateway.chain", "solana")
	v.SetDefault("gateway.network", "mainnet")
	v.SetDefault("gateway.connector", "mango_perpetual_solana_mainnet-beta")
	v.SetDefault("gateway.timeout", 10*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("audit.log_dir", "./logs")
	v.SetDefault("audit.retention", 30*24*time.Hour)
}

func (c *Config) resolvePaths() {
	root := c.Paths.BotsRoot
	join := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	c.Paths.Credentials = join(c.Paths.Credentials)
	c.Paths.Instances = join(c.Paths.Instances)
	c.Paths.Conf = join(c.Paths.Conf)
	c.Paths.Data = join(c.Paths.Data)
	c.Paths.Archive = join(c.Paths.Archive)
}

// WithBotsRoot re-anchors every relative path under a new root. Tests point this at t.TempDir().
func (c *Config) WithBotsRoot(root string) *Config {
	cp := *c
	cp.Paths.BotsRoot = root
	cp.Paths.Credentials = filepath.Join(root, "credentials")
	cp.Paths.Instances = filepath.Join(root, "instances")
	cp.Paths.Conf = filepath.Join(root, "conf")
	cp.Paths.Data = filepath.Join(root, "data")
	cp.Paths.Archive = filepath.Join(root, "archived")
	return &cp
}
