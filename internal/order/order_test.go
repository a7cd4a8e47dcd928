package order

import (
	"errors"
	"strings"
	"testing"
)

func TestEffectiveTif(t *testing.T) {
	if got := EffectiveTif(KindMarket, TifGtc); got != TifIoc {
		t.Fatalf("market order expected Ioc, got %s", got)
	}
	if got := EffectiveTif(KindMarket, TifAlo); got != TifIoc {
		t.Fatalf("market order expected Ioc, got %s", got)
	}
	if got := EffectiveTif(KindLimit, TifAlo); got != TifAlo {
		t.Fatalf("limit order expected Alo, got %s", got)
	}
	if got := EffectiveTif(KindLimit, ""); got != TifGtc {
		t.Fatalf("limit order default expected Gtc, got %s", got)
	}
}

func TestSide(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Fatalf("unexpected opposite side")
	}
	if SideBuy.Sign() != 1 || SideSell.Sign() != -1 {
		t.Fatalf("unexpected side sign")
	}
	if Side("hold").Valid() {
		t.Fatalf("expected invalid side")
	}
}

func TestPartialSequenceErrorUnwrap(t *testing.T) {
	root := errors.New("rejected")
	err := error(&PartialSequenceError{Completed: []string{"cancel"}, Step: "take-profit", Unprotected: true, Err: root})
	if !errors.Is(err, root) {
		t.Fatalf("expected wrapped root error")
	}
	var partial *PartialSequenceError
	if !errors.As(err, &partial) || !partial.Unprotected {
		t.Fatalf("expected unprotected partial sequence error")
	}
	if !strings.Contains(err.Error(), "no take-profit or stop-loss") {
		t.Fatalf("expected unprotected hint in message, got %q", err.Error())
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Invalid("size", "must be > %d", 0)
	if err.Error() != "size: must be > 0" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
