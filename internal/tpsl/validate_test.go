package tpsl

import (
	"errors"
	"math"
	"strings"
	"testing"

	"hl-order-engine/internal/order"
)

func ptr(v float64) *float64 { return &v }

func TestValidateBuy(t *testing.T) {
	if res := Validate(100, order.SideBuy, ptr(90), nil); res.Valid() {
		t.Fatalf("expected buy tp below entry to be rejected")
	}
	res := Validate(100, order.SideBuy, ptr(110), nil)
	if !res.Valid() {
		t.Fatalf("expected buy tp above entry to be accepted: %s", res.TakeProfit.Message)
	}
	if math.Abs(res.TakeProfit.Percent-10) > 1e-9 {
		t.Fatalf("expected +10%%, got %f", res.TakeProfit.Percent)
	}
	if res := Validate(100, order.SideBuy, nil, ptr(100)); res.Valid() {
		t.Fatalf("expected sl equal to entry to be rejected")
	}
	if res := Validate(100, order.SideBuy, nil, ptr(95)); !res.Valid() {
		t.Fatalf("expected buy sl below entry to be accepted")
	}
}

func TestValidateSell(t *testing.T) {
	if res := Validate(100, order.SideSell, nil, ptr(90)); res.Valid() {
		t.Fatalf("expected sell sl below entry to be rejected")
	}
	res := Validate(100, order.SideSell, nil, ptr(110))
	if !res.Valid() {
		t.Fatalf("expected sell sl above entry to be accepted: %s", res.StopLoss.Message)
	}
	if math.Abs(res.StopLoss.Percent+10) > 1e-9 {
		t.Fatalf("expected -10%% for adverse stop, got %f", res.StopLoss.Percent)
	}
	if res := Validate(100, order.SideSell, ptr(80), nil); !res.Valid() {
		t.Fatalf("expected sell tp below entry to be accepted")
	}
}

func TestValidateAbsentIsValid(t *testing.T) {
	res := Validate(0, order.SideBuy, nil, nil)
	if !res.Valid() || res.Err() != nil {
		t.Fatalf("expected absent levels to be valid")
	}
}

func TestValidateSideAwareMessage(t *testing.T) {
	err := Validate(100, order.SideSell, ptr(120), nil).Err()
	var verr *order.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Field != "take_profit" || !strings.Contains(verr.Message, "short") || !strings.Contains(verr.Message, "below") {
		t.Fatalf("unexpected message %q", verr.Message)
	}
}

func TestValidateMissingEntry(t *testing.T) {
	res := Validate(math.NaN(), order.SideBuy, ptr(110), nil)
	if res.Valid() {
		t.Fatalf("expected missing entry to invalidate tp")
	}
}

func TestReturnOnMarginScalesByLeverage(t *testing.T) {
	got := ReturnOnMarginPercent(100, 105, order.SideBuy, 10)
	if math.Abs(got-50) > 1e-9 {
		t.Fatalf("expected 50%%, got %f", got)
	}
	if move := PriceMovePercent(100, 105, order.SideBuy); math.Abs(move-5) > 1e-9 {
		t.Fatalf("expected 5%% price move, got %f", move)
	}
}

func TestPriceForPercent(t *testing.T) {
	if got := PriceForPercent(200, 10, order.SideSell); math.Abs(got-180) > 1e-9 {
		t.Fatalf("expected 180, got %f", got)
	}
}
