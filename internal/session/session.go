package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"hl-order-engine/internal/exec"
	"hl-order-engine/internal/hl/exchange"
	"hl-order-engine/internal/payload"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var ErrDisconnected = errors.New("session disconnected")

type Config struct {
	BaseURL      string
	Timeout      time.Duration
	PrivateKey   string
	VaultAddress string
	Mainnet      bool
}

// Session is one connected wallet.
type Session struct {
	Address  common.Address
	Signer   *exchange.Signer
	Exchange *exchange.Client
	Executor *exec.Executor
}

type Manager struct {
	cfg   Config
	nonce exchange.NonceStore
	log   *zap.Logger

	mu      sync.RWMutex
	current *Session
}

func NewManager(cfg Config, nonce exchange.NonceStore, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{cfg: cfg, nonce: nonce, log: log}
}

func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	signer, err := exchange.NewSigner(m.cfg.PrivateKey, m.cfg.Mainnet)
	if err != nil {
		return nil, err
	}
	client, err := exchange.NewClient(m.cfg.BaseURL, m.cfg.Timeout, signer, m.cfg.VaultAddress)
	if err != nil {
		return nil, err
	}
	client.SetLogger(m.log)
	if err := client.InitNonceStore(ctx, m.nonce); err != nil {
		return nil, err
	}
	sess := &Session{
		Address:  signer.Address(),
		Signer:   signer,
		Exchange: client,
		Executor: exec.New(client, m.log),
	}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	m.log.Info("session connected", zap.String("address", sess.Address.Hex()))
	return sess, nil
}

func (m *Manager) Disconnect() {
	m.mu.Lock()
	sess := m.current
	m.current = nil
	m.mu.Unlock()
	if sess != nil {
		m.log.Info("session disconnected", zap.String("address", sess.Address.Hex()))
	}
}

func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, ErrDisconnected
	}
	return m.current, nil
}

func (m *Manager) Connected() bool {
	_, err := m.Current()
	return err == nil
}

func (m *Manager) PlaceOrder(ctx context.Context, req payload.OrderRequest) (payload.Result, error) {
	sess, err := m.Current()
	if err != nil {
		return payload.Result{}, err
	}
	return sess.Executor.PlaceOrder(ctx, req)
}

func (m *Manager) CancelOrders(ctx context.Context, cancels []payload.Cancel) error {
	sess, err := m.Current()
	if err != nil {
		return err
	}
	return sess.Executor.CancelOrders(ctx, cancels)
}

func (m *Manager) UpdateLeverage(ctx context.Context, update payload.LeverageUpdate) error {
	sess, err := m.Current()
	if err != nil {
		return err
	}
	return sess.Executor.UpdateLeverage(ctx, update)
}

func (m *Manager) USDClassTransfer(ctx context.Context, amount float64, toPerp bool) (map[string]any, error) {
	sess, err := m.Current()
	if err != nil {
		return nil, err
	}
	return sess.Exchange.USDClassTransfer(ctx, amount, toPerp)
}

func (m *Manager) Withdraw(ctx context.Context, destination string, amount float64) (map[string]any, error) {
	sess, err := m.Current()
	if err != nil {
		return nil, err
	}
	return sess.Exchange.Withdraw(ctx, destination, amount)
}

func (m *Manager) TokenDelegate(ctx context.Context, validator string, wei uint64, undelegate bool) (map[string]any, error) {
	sess, err := m.Current()
	if err != nil {
		return nil, err
	}
	return sess.Exchange.TokenDelegate(ctx, validator, wei, undelegate)
}
