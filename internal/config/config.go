package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	REST     RESTConfig     `yaml:"rest"`
	WS       WSConfig       `yaml:"ws"`
	Wallet   WalletConfig   `yaml:"wallet"`
	State    StateConfig    `yaml:"state"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Telegram TelegramConfig `yaml:"telegram"`
	Ticket   TicketConfig   `yaml:"ticket"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// WalletConfig identifies the trading account. The private key is only
// read from HL_PRIVATE_KEY.
type WalletConfig struct {
	Address      string `yaml:"address"`
	VaultAddress string `yaml:"vault_address"`
	Mainnet      *bool  `yaml:"mainnet"`
	PrivateKey   string `yaml:"-"`
}

func (w WalletConfig) MainnetValue() bool {
	return w.Mainnet != nil && *w.Mainnet
}

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type StateConfig struct {
	Backend    string         `yaml:"backend"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type TicketConfig struct {
	MinOrderUSD float64        `yaml:"min_order_usd"`
	CacheSize   int            `yaml:"cache_size"`
	WithdrawFee float64        `yaml:"withdraw_fee"`
	Slippage    SlippageConfig `yaml:"slippage"`
}

// SlippageConfig holds the market-order price factors as fractions
// (0.001 = 0.1%).
type SlippageConfig struct {
	PerpBook float64 `yaml:"perp_book"`
	PerpMid  float64 `yaml:"perp_mid"`
	SpotBook float64 `yaml:"spot_book"`
	SpotMid  float64 `yaml:"spot_mid"`
}

// RefreshConfig overrides the post-success account refresh delay per
// action class ("order", "deposit", ...) and sets how often the market
// catalog may be reloaded.
type RefreshConfig struct {
	Catalog time.Duration            `yaml:"catalog"`
	Delays  map[string]time.Duration `yaml:"delays"`
}

// BridgeConfig points deposits at the settlement chain. Empty addresses
// fall back to the network defaults for the wallet's mainnet setting.
type BridgeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	RPCURL   string        `yaml:"rpc_url"`
	ChainID  int64         `yaml:"chain_id"`
	Token    string        `yaml:"token"`
	Contract string        `yaml:"contract"`
	Timeout  time.Duration `yaml:"timeout"`
}

const (
	mainnetChainID  = 42161
	mainnetUSDC     = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	mainnetBridge   = "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"
	testnetChainID  = 421614
	testnetUSDC     = "0x1baAbB04529D43a73232B713C0FE471f7c7334d5"
	testnetBridge   = "0x08cfc1B6b2dCF36A1480b99353A354AA8AC56f89"
	defaultBaseURL  = "https://api.hyperliquid.xyz"
	defaultLogLevel = "info"
)

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = defaultBaseURL
	}
	cfg.REST.BaseURL = strings.TrimRight(cfg.REST.BaseURL, "/")
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = wsURLFromREST(cfg.REST.BaseURL)
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.Wallet.Mainnet == nil {
		mainnet := !strings.Contains(cfg.REST.BaseURL, "testnet")
		cfg.Wallet.Mainnet = &mainnet
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = BackendSQLite
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hl-order-engine.db"
	}
	if cfg.State.Postgres.Schema == "" {
		cfg.State.Postgres.Schema = "public"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Ticket.MinOrderUSD == 0 {
		cfg.Ticket.MinOrderUSD = 10
	}
	if cfg.Ticket.CacheSize == 0 {
		cfg.Ticket.CacheSize = 256
	}
	if cfg.Ticket.WithdrawFee == 0 {
		cfg.Ticket.WithdrawFee = 1
	}
	applySlippageDefaults(&cfg.Ticket.Slippage)
	if cfg.Refresh.Catalog == 0 {
		cfg.Refresh.Catalog = 30 * time.Second
	}
	applyBridgeDefaults(&cfg.Bridge, cfg.Wallet.MainnetValue())
}

func applySlippageDefaults(s *SlippageConfig) {
	if s.PerpBook == 0 {
		s.PerpBook = 0.001
	}
	if s.PerpMid == 0 {
		s.PerpMid = 0.001
	}
	if s.SpotBook == 0 {
		s.SpotBook = 0.02
	}
	if s.SpotMid == 0 {
		s.SpotMid = 0.01
	}
}

func applyBridgeDefaults(b *BridgeConfig, mainnet bool) {
	chainID, token, contract := int64(testnetChainID), testnetUSDC, testnetBridge
	if mainnet {
		chainID, token, contract = mainnetChainID, mainnetUSDC, mainnetBridge
	}
	if b.ChainID == 0 {
		b.ChainID = chainID
	}
	if b.Token == "" {
		b.Token = token
	}
	if b.Contract == "" {
		b.Contract = contract
	}
	if b.Timeout == 0 {
		b.Timeout = 15 * time.Second
	}
}

func wsURLFromREST(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return "wss://api.hyperliquid.xyz/ws"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("HL_PRIVATE_KEY")); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv("HL_WALLET_ADDRESS")); v != "" {
		cfg.Wallet.Address = v
	}
	if v := strings.TrimSpace(os.Getenv("HL_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("HL_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("HL_POSTGRES_DSN")); v != "" {
		cfg.State.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("HL_BRIDGE_RPC_URL")); v != "" {
		cfg.Bridge.RPCURL = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	if cfg.REST.Timeout < 0 {
		return errors.New("rest.timeout must be >= 0")
	}
	if cfg.WS.ReconnectDelay < 0 || cfg.WS.PingInterval < 0 {
		return errors.New("ws durations must be >= 0")
	}
	switch cfg.State.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if strings.TrimSpace(cfg.State.Postgres.DSN) == "" {
			return errors.New("state.postgres.dsn (or HL_POSTGRES_DSN) is required for the postgres backend")
		}
	default:
		return fmt.Errorf("state.backend %q is not one of sqlite, postgres", cfg.State.Backend)
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.enabled requires token and chat_id")
	}
	if cfg.Ticket.MinOrderUSD < 0 || cfg.Ticket.WithdrawFee < 0 {
		return errors.New("ticket amounts must be >= 0")
	}
	if cfg.Ticket.CacheSize < 0 {
		return errors.New("ticket.cache_size must be >= 0")
	}
	s := cfg.Ticket.Slippage
	for _, f := range []float64{s.PerpBook, s.PerpMid, s.SpotBook, s.SpotMid} {
		if f < 0 || f >= 1 {
			return errors.New("ticket.slippage factors must be in [0, 1)")
		}
	}
	for class, delay := range cfg.Refresh.Delays {
		if delay < 0 {
			return fmt.Errorf("refresh.delays.%s must be >= 0", class)
		}
	}
	if cfg.Bridge.Enabled && strings.TrimSpace(cfg.Bridge.RPCURL) == "" {
		return errors.New("bridge.enabled requires rpc_url (or HL_BRIDGE_RPC_URL)")
	}
	return nil
}
