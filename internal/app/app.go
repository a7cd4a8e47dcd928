package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hl-order-engine/internal/account"
	"hl-order-engine/internal/alerts"
	"hl-order-engine/internal/asset"
	"hl-order-engine/internal/config"
	"hl-order-engine/internal/hl/exchange"
	"hl-order-engine/internal/hl/rest"
	"hl-order-engine/internal/hl/ws"
	"hl-order-engine/internal/market"
	"hl-order-engine/internal/metrics"
	"hl-order-engine/internal/payload"
	"hl-order-engine/internal/prefs"
	"hl-order-engine/internal/session"
	"hl-order-engine/internal/state"
	"hl-order-engine/internal/state/postgres"
	"hl-order-engine/internal/state/sqlite"
	"hl-order-engine/internal/ticket"
	"hl-order-engine/internal/transfer"
	"hl-order-engine/internal/txflow"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	rest      *rest.Client
	marketWS  *ws.Client
	accountWS *ws.Client
	market    *market.MarketData
	account   *account.Account
	session   *session.Manager
	prefs     *prefs.Store
	prom      *metrics.Prometheus
	metrics   *metrics.Metrics
	alerts    *alerts.Telegram
	resolver  *asset.Resolver
	builder   *payload.Builder
	sequencer *payload.Sequencer
	engine    *ticket.Engine
	transfers *transfer.Service
	rpc       *ethclient.Client
	policies  map[txflow.ActionClass]txflow.Policy
	scheduler txflow.Scheduler
	slippage  ticket.Slippage

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	store, err := openStore(cfg.State, log)
	if err != nil {
		return nil, err
	}
	user, err := walletAddress(cfg.Wallet)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	marketWS := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log)
	accountWS := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log)
	marketData := market.New(restClient, marketWS, log)
	if cfg.Refresh.Catalog > 0 {
		marketData.SetRefreshWindow(cfg.Refresh.Catalog)
	}
	accountClient := account.New(restClient, accountWS, log, user)

	manager := session.NewManager(session.Config{
		BaseURL:      cfg.REST.BaseURL,
		Timeout:      cfg.REST.Timeout,
		PrivateKey:   cfg.Wallet.PrivateKey,
		VaultAddress: cfg.Wallet.VaultAddress,
		Mainnet:      cfg.Wallet.MainnetValue(),
	}, store, log)

	var prom *metrics.Prometheus
	counters := metrics.NewNoop()
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		counters = prom.Metrics
	}
	telegram := alerts.NewTelegram(cfg.Telegram, log).WithTag(shortAddress(user))
	resolver := asset.NewResolver(marketData)

	var rpc *ethclient.Client
	if cfg.Bridge.Enabled {
		rpc, err = transfer.DialRPC(context.Background(), cfg.Bridge.RPCURL, cfg.Bridge.Timeout)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		rest:      restClient,
		marketWS:  marketWS,
		accountWS: accountWS,
		market:    marketData,
		account:   accountClient,
		session:   manager,
		prefs:     prefs.New(store, log),
		prom:      prom,
		metrics:   counters,
		alerts:    telegram,
		resolver:  resolver,
		builder:   payload.NewBuilder(resolver),
		sequencer: payload.NewSequencer(manager, log, counters, telegram),
		engine:    ticket.NewEngine(cfg.Ticket.CacheSize),
		transfers: transfer.NewService(manager, log),
		rpc:       rpc,
		policies:  policies(cfg.Refresh.Delays),
		scheduler: txflow.ClockScheduler(),
		slippage:  slippage(cfg.Ticket.Slippage),
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

func openStore(cfg config.StateConfig, log *zap.Logger) (state.Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		return postgres.New(cfg.Postgres, log)
	default:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, err
			}
		}
		return sqlite.New(cfg.SQLitePath)
	}
}

// walletAddress returns the account the app reads balances for. When both
// an address and a key are configured they must agree.
func walletAddress(cfg config.WalletConfig) (string, error) {
	address := strings.TrimSpace(cfg.Address)
	if address != "" && !common.IsHexAddress(address) {
		return "", fmt.Errorf("wallet address %q is not a 0x address", address)
	}
	if cfg.PrivateKey == "" {
		if address == "" {
			return "", errors.New("HL_WALLET_ADDRESS or HL_PRIVATE_KEY is required")
		}
		return address, nil
	}
	signer, err := exchange.NewSigner(cfg.PrivateKey, cfg.MainnetValue())
	if err != nil {
		return "", err
	}
	derived := signer.Address().Hex()
	if address == "" {
		return derived, nil
	}
	if cfg.VaultAddress == "" && !strings.EqualFold(address, derived) {
		return "", fmt.Errorf("wallet address does not match private key: got %s expected %s", address, derived)
	}
	return address, nil
}

func policies(delays map[string]time.Duration) map[txflow.ActionClass]txflow.Policy {
	out := txflow.DefaultPolicies()
	for class, delay := range delays {
		p, ok := out[txflow.ActionClass(class)]
		if !ok {
			continue
		}
		p.RefreshDelay = delay
		out[txflow.ActionClass(class)] = p
	}
	return out
}

func slippage(cfg config.SlippageConfig) ticket.Slippage {
	return ticket.Slippage{
		PerpBook: cfg.PerpBook,
		PerpMid:  cfg.PerpMid,
		SpotBook: cfg.SpotBook,
		SpotMid:  cfg.SpotMid,
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// Start connects the wallet session when a key is configured, then loads
// preferences, the instrument catalog and the account snapshot together.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Wallet.PrivateKey != "" {
		sess, err := a.session.Connect(ctx)
		if err != nil {
			return fmt.Errorf("connect session: %w", err)
		}
		if nonce, ok := sess.Exchange.NonceState(); ok {
			a.log.Info("nonce persistence enabled", zap.String("nonce_key", nonce.Key), zap.Uint64("nonce_seed", nonce.Last))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.prefs.Load(gctx)
	})
	g.Go(func() error {
		return a.market.RefreshCatalog(gctx, true)
	})
	g.Go(func() error {
		_, err := a.account.Refresh(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if venues := a.market.Venues(); len(venues) > 0 {
		a.account.SetVenues(venues)
		if _, err := a.account.Refresh(ctx); err != nil {
			return err
		}
	}
	snap, _ := a.account.Snapshot()
	a.log.Info("app started",
		zap.Bool("connected", a.session.Connected()),
		zap.Int("positions", len(snap.Positions)),
		zap.Int("open_orders", len(snap.OpenOrders)),
	)
	return nil
}

// Run streams mids and account events and serves metrics until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if err := a.market.Start(ctx); err != nil {
		return err
	}
	if err := a.account.Start(ctx); err != nil {
		return err
	}
	var server *http.Server
	if a.prom != nil {
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
		server = &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
	}
	<-ctx.Done()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return ctx.Err()
}

func (a *App) Close() error {
	a.session.Disconnect()
	_ = a.marketWS.Close()
	_ = a.accountWS.Close()
	if a.rpc != nil {
		a.rpc.Close()
	}
	return a.store.Close()
}

func (a *App) Market() *market.MarketData {
	return a.market
}

func (a *App) Account() *account.Account {
	return a.account
}

func (a *App) Prefs() *prefs.Store {
	return a.prefs
}

func (a *App) Session() *session.Manager {
	return a.session
}

func (a *App) bridge() (*transfer.Bridge, error) {
	if a.rpc == nil {
		return nil, errors.New("bridge is not enabled")
	}
	sess, err := a.session.Current()
	if err != nil {
		return nil, err
	}
	return transfer.NewBridge(transfer.BridgeConfig{
		ChainID: big.NewInt(a.cfg.Bridge.ChainID),
		Token:   common.HexToAddress(a.cfg.Bridge.Token),
		Bridge:  common.HexToAddress(a.cfg.Bridge.Contract),
	}, sess.Signer, a.rpc, a.log), nil
}

func (a *App) metricsFor(class txflow.ActionClass) *metrics.Metrics {
	if a.prom == nil {
		return a.metrics
	}
	return a.prom.ForClass(string(class))
}

// positionLock serializes cancel-then-replace edits on one position.
func (a *App) positionLock(inst asset.Instrument) *sync.Mutex {
	key := inst.String()
	a.lockMu.Lock()
	defer a.lockMu.Unlock()
	mu, ok := a.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		a.locks[key] = mu
	}
	return mu
}
