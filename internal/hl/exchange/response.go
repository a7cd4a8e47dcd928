package exchange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrRejected = errors.New("exchange rejected action")

type OrderStatus struct {
	OrderID   int64
	Cloid     string
	Resting   bool
	Filled    bool
	TotalSize string
	AvgPrice  string
}

// CheckResponse returns an ErrRejected-wrapped error carrying the exchange
// message when the action failed as a whole or any per-item status is an
// error.
func CheckResponse(resp map[string]any) error {
	if resp == nil {
		return fmt.Errorf("%w: empty response", ErrRejected)
	}
	if status := stringFromAny(resp["status"]); status != "ok" {
		msg := stringFromAny(resp["response"])
		if msg == "" {
			msg = "status " + status
		}
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	var errs []string
	for _, raw := range statuses(resp) {
		if entry, ok := raw.(map[string]any); ok {
			if msg := stringFromAny(entry["error"]); msg != "" {
				errs = append(errs, msg)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(errs, "; "))
	}
	return nil
}

// OrderStatuses decodes the per-order statuses of an order response.
func OrderStatuses(resp map[string]any) ([]OrderStatus, error) {
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	raw := statuses(resp)
	out := make([]OrderStatus, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if resting, ok := entry["resting"].(map[string]any); ok {
			out = append(out, OrderStatus{
				OrderID: int64FromAny(resting["oid"]),
				Cloid:   stringFromAny(resting["cloid"]),
				Resting: true,
			})
			continue
		}
		if filled, ok := entry["filled"].(map[string]any); ok {
			out = append(out, OrderStatus{
				OrderID:   int64FromAny(filled["oid"]),
				Cloid:     stringFromAny(filled["cloid"]),
				Filled:    true,
				TotalSize: stringFromAny(filled["totalSz"]),
				AvgPrice:  stringFromAny(filled["avgPx"]),
			})
		}
	}
	if len(out) == 0 {
		return nil, errors.New("order response has no statuses")
	}
	return out, nil
}

func statuses(resp map[string]any) []any {
	response, ok := resp["response"].(map[string]any)
	if !ok {
		return nil
	}
	data, ok := response["data"].(map[string]any)
	if !ok {
		return nil
	}
	list, _ := data["statuses"].([]any)
	return list
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func int64FromAny(v any) int64 {
	switch val := v.(type) {
	case float64:
		return int64(val)
	case int64:
		return val
	case int:
		return int64(val)
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return i
	default:
		return 0
	}
}
