package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hl-order-engine/internal/hl/exchange"
	"hl-order-engine/internal/order"
	"hl-order-engine/internal/precision"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultWithdrawFee = 1.0
	MinDeposit         = 5.0
	usdcDecimals       = 2
	stakeDecimals      = 8
)

// Client is the part of the signed exchange client that moves balances.
type Client interface {
	USDClassTransfer(ctx context.Context, amount float64, toPerp bool) (map[string]any, error)
	Withdraw(ctx context.Context, destination string, amount float64) (map[string]any, error)
	TokenDelegate(ctx context.Context, validator string, wei uint64, undelegate bool) (map[string]any, error)
}

type WithdrawRequest struct {
	Destination string
	Amount      string
}

// Validate checks the amount covers the bridge fee and is within the
// withdrawable balance.
func (r WithdrawRequest) Validate(withdrawable, fee float64) error {
	if !common.IsHexAddress(strings.TrimSpace(r.Destination)) {
		return order.Invalid("destination", "destination must be a 0x address")
	}
	amount, err := parseAmount("amount", r.Amount, usdcDecimals)
	if err != nil {
		return err
	}
	if amount <= fee {
		return order.Invalid("amount", "amount must exceed the %s withdrawal fee", precision.FormatUSD(fee))
	}
	if amount > withdrawable {
		return order.Invalid("amount", "amount exceeds withdrawable %s", precision.FormatUSD(withdrawable))
	}
	return nil
}

type ClassTransferRequest struct {
	Amount string
	ToPerp bool
}

// Validate checks the amount against the source balance: spot USDC when
// moving to perps, perp withdrawable otherwise.
func (r ClassTransferRequest) Validate(available float64) error {
	amount, err := parseAmount("amount", r.Amount, usdcDecimals)
	if err != nil {
		return err
	}
	if amount > available {
		return order.Invalid("amount", "amount exceeds available %s", precision.FormatUSD(available))
	}
	return nil
}

type StakeRequest struct {
	Validator string
	Amount    string
	Unstake   bool
}

func (r StakeRequest) Validate(available float64) error {
	if !common.IsHexAddress(strings.TrimSpace(r.Validator)) {
		return order.Invalid("validator", "validator must be a 0x address")
	}
	amount, err := parseAmount("amount", r.Amount, stakeDecimals)
	if err != nil {
		return err
	}
	if amount > available {
		return order.Invalid("amount", "amount exceeds available %s", decimal.NewFromFloat(available).String())
	}
	return nil
}

// Wei converts the staked amount to the token's smallest unit.
func (r StakeRequest) Wei() (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil {
		return 0, err
	}
	wei := d.Shift(stakeDecimals)
	if !wei.IsPositive() || !wei.Equal(wei.Truncate(0)) {
		return 0, fmt.Errorf("amount %s is not representable in wei", r.Amount)
	}
	return uint64(wei.IntPart()), nil
}

type Service struct {
	client Client
	log    *zap.Logger
}

func NewService(client Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{client: client, log: log}
}

func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) error {
	amount, _ := precision.Parse(req.Amount)
	return s.submit("withdraw", func() (map[string]any, error) {
		return s.client.Withdraw(ctx, strings.TrimSpace(req.Destination), amount)
	}, zap.String("destination", req.Destination), zap.String("amount", req.Amount))
}

func (s *Service) ClassTransfer(ctx context.Context, req ClassTransferRequest) error {
	amount, _ := precision.Parse(req.Amount)
	return s.submit("usd_class_transfer", func() (map[string]any, error) {
		return s.client.USDClassTransfer(ctx, amount, req.ToPerp)
	}, zap.String("amount", req.Amount), zap.Bool("to_perp", req.ToPerp))
}

func (s *Service) Stake(ctx context.Context, req StakeRequest) error {
	wei, err := req.Wei()
	if err != nil {
		return order.Invalid("amount", "%v", err)
	}
	return s.submit("token_delegate", func() (map[string]any, error) {
		return s.client.TokenDelegate(ctx, strings.TrimSpace(req.Validator), wei, req.Unstake)
	}, zap.String("validator", req.Validator), zap.Uint64("wei", wei), zap.Bool("unstake", req.Unstake))
}

func (s *Service) submit(step string, call func() (map[string]any, error), fields ...zap.Field) error {
	if s.client == nil {
		return &order.SubmissionError{Step: step, Err: errors.New("not connected")}
	}
	resp, err := call()
	if err == nil {
		err = exchange.CheckResponse(resp)
	}
	if err != nil {
		s.log.Warn("transfer failed", append(fields, zap.String("step", step), zap.Error(err))...)
		return &order.SubmissionError{Step: step, Err: err}
	}
	s.log.Info("transfer submitted", append(fields, zap.String("step", step))...)
	return nil
}

func parseAmount(field, input string, decimals int) (float64, error) {
	v, ok := precision.Parse(input)
	if !ok || v <= 0 {
		return 0, order.Invalid(field, "%s must be greater than 0", field)
	}
	if precision.Decimals(input) > decimals {
		return 0, order.Invalid(field, "%s allows at most %d decimals", field, decimals)
	}
	return v, nil
}
