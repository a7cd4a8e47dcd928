package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestInfoSendsDexAndCoin(t *testing.T) {
	var got InfoRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"BTC":"100.5"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second, zap.NewNop())
	resp, err := client.Info(context.Background(), InfoRequest{Type: "allMids", Dex: "xyz"})
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if got.Type != "allMids" || got.Dex != "xyz" || got.Coin != "" {
		t.Fatalf("unexpected request %+v", got)
	}
	if resp["BTC"] != "100.5" {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestInfoAnyDecodesArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[null,{"name":"xyz"}]`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second, nil).InfoAny(context.Background(), InfoRequest{Type: "perpDexs"})
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	arr, ok := resp.([]any)
	if !ok || len(arr) != 2 || arr[0] != nil {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestInfoReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, time.Second, nil).Info(context.Background(), InfoRequest{Type: "nope"}); err == nil {
		t.Fatalf("expected http error")
	}
}
