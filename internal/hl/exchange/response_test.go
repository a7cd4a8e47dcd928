package exchange

import (
	"errors"
	"strings"
	"testing"
)

func TestOrderStatusesFilled(t *testing.T) {
	resp := map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{
				"statuses": []any{
					map[string]any{
						"filled": map[string]any{
							"oid":     float64(292577153770),
							"cloid":   "0x188a0f9ee162351d6d6af5b09b97b1c7",
							"totalSz": "0.02",
							"avgPx":   "1891.4",
						},
					},
				},
			},
		},
	}
	got, err := OrderStatuses(resp)
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if len(got) != 1 || got[0].OrderID != 292577153770 || !got[0].Filled || got[0].AvgPrice != "1891.4" {
		t.Fatalf("unexpected statuses %+v", got)
	}
}

func TestOrderStatusesResting(t *testing.T) {
	resp := map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{
				"statuses": []any{map[string]any{"resting": map[string]any{"oid": float64(77738308)}}},
			},
		},
	}
	got, err := OrderStatuses(resp)
	if err != nil || len(got) != 1 || !got[0].Resting || got[0].OrderID != 77738308 {
		t.Fatalf("unexpected statuses %+v (%v)", got, err)
	}
}

func TestCheckResponseItemError(t *testing.T) {
	resp := map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{
				"statuses": []any{map[string]any{"error": "Order must have minimum value of $10."}},
			},
		},
	}
	err := CheckResponse(resp)
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "minimum value") {
		t.Fatalf("expected rejection with exchange message, got %v", err)
	}
}

func TestCheckResponseTopLevelError(t *testing.T) {
	err := CheckResponse(map[string]any{"status": "err", "response": "User or API Wallet does not exist."})
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("unexpected error %v", err)
	}
	if err := CheckResponse(map[string]any{"status": "ok", "response": map[string]any{"type": "default"}}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}
