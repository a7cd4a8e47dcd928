package exchange

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func LimitOrderWire(asset int, isBuy bool, price, size string, reduceOnly bool, tif Tif, cloid string) (OrderWire, error) {
	if tif == "" {
		return OrderWire{}, errors.New("tif is required")
	}
	return orderWire(asset, isBuy, price, size, reduceOnly, OrderTypeWire{Limit: &LimitOrderType{Tif: tif}}, cloid)
}

// TriggerOrderWire builds a take-profit or stop-loss order. price is the
// limit applied once triggered; market triggers still need one.
func TriggerOrderWire(asset int, isBuy bool, price, size string, reduceOnly bool, triggerPx string, isMarket bool, tpsl Tpsl, cloid string) (OrderWire, error) {
	if tpsl != TpslTakeProfit && tpsl != TpslStopLoss {
		return OrderWire{}, fmt.Errorf("invalid tpsl %q", tpsl)
	}
	trigger, err := decimalToWire(triggerPx)
	if err != nil {
		return OrderWire{}, fmt.Errorf("trigger price: %w", err)
	}
	orderType := OrderTypeWire{Trigger: &TriggerOrderType{IsMarket: isMarket, TriggerPx: trigger, Tpsl: tpsl}}
	return orderWire(asset, isBuy, price, size, reduceOnly, orderType, cloid)
}

func orderWire(asset int, isBuy bool, price, size string, reduceOnly bool, orderType OrderTypeWire, cloid string) (OrderWire, error) {
	priceWire, err := decimalToWire(price)
	if err != nil {
		return OrderWire{}, fmt.Errorf("limit price: %w", err)
	}
	sizeWire, err := decimalToWire(size)
	if err != nil {
		return OrderWire{}, fmt.Errorf("size: %w", err)
	}
	return OrderWire{
		Asset:      asset,
		IsBuy:      isBuy,
		Price:      priceWire,
		Size:       sizeWire,
		ReduceOnly: reduceOnly,
		OrderType:  orderType,
		Cloid:      cloid,
	}, nil
}

// decimalToWire strips trailing zeros so the signed payload matches the
// exchange's canonical form.
func decimalToWire(s string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	if d.IsNegative() {
		return "", fmt.Errorf("negative value %s", s)
	}
	return d.String(), nil
}

func floatToWire(x float64) (string, error) {
	rounded := fmt.Sprintf("%.8f", x)
	parsed, err := strconv.ParseFloat(rounded, 64)
	if err != nil {
		return "", err
	}
	if math.Abs(parsed-x) >= 1e-12 {
		return "", fmt.Errorf("float_to_wire causes rounding: %f", x)
	}
	trimmed := strings.TrimRight(rounded, "0")
	trimmed = strings.TrimRight(trimmed, ".")
	if trimmed == "" || trimmed == "-0" {
		trimmed = "0"
	}
	return trimmed, nil
}
