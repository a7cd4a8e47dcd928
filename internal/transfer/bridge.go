package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"hl-order-engine/internal/order"
	"hl-order-engine/internal/precision"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	depositGasLimit   = 120_000
	bridgeUSDCDecimal = 6
)

// erc20 transfer(address,uint256)
var transferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ChainRPC is the settlement chain node used to broadcast deposits.
type ChainRPC interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type BridgeConfig struct {
	ChainID *big.Int
	Token   common.Address
	Bridge  common.Address
}

// Bridge deposits USDC by transferring it to the bridge contract on the
// settlement chain. The deposit is credited by the exchange once the chain
// confirms it; Deposit returns as soon as the transaction is broadcast.
type Bridge struct {
	cfg    BridgeConfig
	signer TxSigner
	rpc    ChainRPC
	log    *zap.Logger
}

func NewBridge(cfg BridgeConfig, signer TxSigner, rpc ChainRPC, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{cfg: cfg, signer: signer, rpc: rpc, log: log}
}

type DepositRequest struct {
	Amount string
}

func (r DepositRequest) Validate() error {
	amount, err := parseAmount("amount", r.Amount, bridgeUSDCDecimal)
	if err != nil {
		return err
	}
	if amount < MinDeposit {
		return order.Invalid("amount", "minimum deposit is %s USDC", precision.FormatUSD(MinDeposit))
	}
	return nil
}

func (b *Bridge) Deposit(ctx context.Context, req DepositRequest) (common.Hash, error) {
	if b.signer == nil || b.rpc == nil || b.cfg.ChainID == nil {
		return common.Hash{}, &order.SubmissionError{Step: "deposit", Err: errors.New("bridge is not configured")}
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return common.Hash{}, order.Invalid("amount", "amount must be a number")
	}
	units := amount.Shift(bridgeUSDCDecimal).BigInt()
	tx, err := b.buildTx(ctx, units)
	if err != nil {
		return common.Hash{}, &order.SubmissionError{Step: "deposit", Err: err}
	}
	if err := b.rpc.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, &order.SubmissionError{Step: "deposit", Err: err}
	}
	hash := tx.Hash()
	b.log.Info("deposit broadcast", zap.String("tx", hash.Hex()), zap.String("amount", req.Amount))
	return hash, nil
}

func (b *Bridge) buildTx(ctx context.Context, units *big.Int) (*types.Transaction, error) {
	from := b.signer.Address()
	nonce, err := b.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := b.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &b.cfg.Token,
		Value:    big.NewInt(0),
		Gas:      depositGasLimit,
		GasPrice: gasPrice,
		Data:     transferData(b.cfg.Bridge, units),
	})
	return b.signer.SignTx(tx, b.cfg.ChainID)
}

func transferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// DialRPC connects to the settlement chain node at url. HTTP endpoints are
// not contacted until the first call.
func DialRPC(ctx context.Context, url string, timeout time.Duration) (*ethclient.Client, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial bridge rpc: %w", err)
	}
	return client, nil
}
