package exchange

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

func TestFloatToWire(t *testing.T) {
	cases := []struct {
		in  float64
		out string
	}{
		{in: 1.23, out: "1.23"},
		{in: 0, out: "0"},
		{in: math.Copysign(0, -1), out: "0"},
		{in: 1.23000000, out: "1.23"},
	}
	for _, tc := range cases {
		got, err := floatToWire(tc.in)
		if err != nil {
			t.Fatalf("unexpected error for %f: %v", tc.in, err)
		}
		if got != tc.out {
			t.Fatalf("expected %s, got %s", tc.out, got)
		}
	}
	if _, err := floatToWire(1.234567891); err == nil {
		t.Fatalf("expected rounding error")
	}
}

func TestEncodeOrderActionDeterministic(t *testing.T) {
	order, err := LimitOrderWire(1, true, "100.0", "2.50", false, TifIoc, "")
	if err != nil {
		t.Fatalf("unexpected order wire error: %v", err)
	}
	action := OrderAction{Type: "order", Orders: []OrderWire{order}, Grouping: "na"}
	b1, err := EncodeOrderAction(action)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	b2, err := EncodeOrderAction(action)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("expected deterministic encoding")
	}
	var decoded map[string]any
	if err := msgpack.Unmarshal(b1, &decoded); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if decoded["type"] != "order" {
		t.Fatalf("unexpected action type")
	}
	orders, ok := decoded["orders"].([]any)
	if !ok || len(orders) != 1 {
		t.Fatalf("expected 1 order")
	}
	orderMap, ok := orders[0].(map[string]any)
	if !ok {
		t.Fatalf("expected order map")
	}
	if orderMap["p"] != "100" {
		t.Fatalf("expected price 100, got %v", orderMap["p"])
	}
	if orderMap["s"] != "2.5" {
		t.Fatalf("expected size 2.5, got %v", orderMap["s"])
	}
}

func TestSignerRecover(t *testing.T) {
	signer, err := NewSigner("4f3edf983ac636a65a842ce7c78d9aa706d3b113bce036f81af8f9b72d3d80b2", true)
	if err != nil {
		t.Fatalf("signer error: %v", err)
	}
	order, err := LimitOrderWire(1, true, "100.0", "2.50", false, TifIoc, "")
	if err != nil {
		t.Fatalf("order wire error: %v", err)
	}
	action := OrderAction{Type: "order", Orders: []OrderWire{order}, Grouping: "na"}
	nonce := uint64(1700000000000)
	sig, err := signer.SignOrderAction(action, nonce, nil, nil)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	payload, err := EncodeOrderAction(action)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	aHash := actionHash(payload, nonce, nil, nil)
	digest, err := typedDataHash(aHash, true)
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}
	sigBytes, err := signatureBytes(sig)
	if err != nil {
		t.Fatalf("signature bytes error: %v", err)
	}
	pubKey, err := crypto.SigToPub(digest, sigBytes)
	if err != nil {
		t.Fatalf("recover error: %v", err)
	}
	recovered := crypto.PubkeyToAddress(*pubKey)
	if recovered != signer.Address() {
		t.Fatalf("expected %s, got %s", signer.Address().Hex(), recovered.Hex())
	}
}

func TestEncodeTriggerOrder(t *testing.T) {
	order, err := TriggerOrderWire(110003, false, "120.00", "2.000", true, "120", true, TpslTakeProfit, "")
	if err != nil {
		t.Fatalf("trigger wire: %v", err)
	}
	b, err := EncodeOrderAction(OrderAction{Type: "order", Orders: []OrderWire{order}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := msgpack.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["grouping"] != "na" {
		t.Fatalf("expected default grouping na, got %v", decoded["grouping"])
	}
	wire := decoded["orders"].([]any)[0].(map[string]any)
	if wire["p"] != "120" || wire["s"] != "2" || wire["r"] != true {
		t.Fatalf("unexpected order wire %v", wire)
	}
	trigger := wire["t"].(map[string]any)["trigger"].(map[string]any)
	if trigger["tpsl"] != "tp" || trigger["triggerPx"] != "120" || trigger["isMarket"] != true {
		t.Fatalf("unexpected trigger %v", trigger)
	}
	if _, err := TriggerOrderWire(1, true, "1", "1", true, "1", true, Tpsl("x"), ""); err == nil {
		t.Fatalf("expected invalid tpsl error")
	}
}

func TestEncodeUpdateLeverageFieldOrder(t *testing.T) {
	b, err := EncodeUpdateLeverageAction(UpdateLeverageAction{Type: "updateLeverage", Asset: 3, IsCross: true, Leverage: 4})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	n, err := dec.DecodeMapLen()
	if err != nil || n != 4 {
		t.Fatalf("expected 4 keys, got %d (%v)", n, err)
	}
	want := []string{"type", "asset", "isCross", "leverage"}
	for _, key := range want {
		got, err := dec.DecodeString()
		if err != nil || got != key {
			t.Fatalf("expected key %s, got %s (%v)", key, got, err)
		}
		if _, err := dec.DecodeInterface(); err != nil {
			t.Fatalf("decode value: %v", err)
		}
	}
	if _, err := EncodeUpdateLeverageAction(UpdateLeverageAction{Type: "updateLeverage", Leverage: 0}); err == nil {
		t.Fatalf("expected leverage validation error")
	}
}

func TestSignWithdrawRecover(t *testing.T) {
	signer, err := NewSigner("4f3edf983ac636a65a842ce7c78d9aa706d3b113bce036f81af8f9b72d3d80b2", false)
	if err != nil {
		t.Fatalf("signer error: %v", err)
	}
	action := WithdrawAction{Type: "withdraw3", Destination: "0x5e9ee1089755c3435139848e47e6635505d5a13a", Amount: "25", Time: 1700000000000}
	sig, err := signer.SignWithdraw(&action)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if action.HyperliquidChain != "Testnet" || action.SignatureChainID != defaultSignatureChainID {
		t.Fatalf("expected chain fields to be filled, got %+v", action)
	}
	digest, err := userSignedTypedDataHash(action.SignatureChainID, withdrawType, []apitypes.Type{
		{Name: "hyperliquidChain", Type: "string"},
		{Name: "destination", Type: "string"},
		{Name: "amount", Type: "string"},
		{Name: "time", Type: "uint64"},
	}, apitypes.TypedDataMessage{
		"hyperliquidChain": action.HyperliquidChain,
		"destination":      action.Destination,
		"amount":           action.Amount,
		"time":             "1700000000000",
	})
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sigBytes, err := signatureBytes(sig)
	if err != nil {
		t.Fatalf("signature bytes: %v", err)
	}
	pub, err := crypto.SigToPub(digest, sigBytes)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != signer.Address() {
		t.Fatalf("recovered address mismatch")
	}
}

func TestSignTokenDelegate(t *testing.T) {
	signer, err := NewSigner("4f3edf983ac636a65a842ce7c78d9aa706d3b113bce036f81af8f9b72d3d80b2", true)
	if err != nil {
		t.Fatalf("signer error: %v", err)
	}
	action := TokenDelegateAction{Type: "tokenDelegate", Validator: "0x5e9ee1089755c3435139848e47e6635505d5a13a", Wei: 100000000, Nonce: 1700000000000}
	sig, err := signer.SignTokenDelegate(&action)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Fatalf("unexpected v %d", sig.V)
	}
	if action.HyperliquidChain != "Mainnet" {
		t.Fatalf("expected Mainnet, got %s", action.HyperliquidChain)
	}
}

func signatureBytes(sig Signature) ([]byte, error) {
	r, err := hexutil.Decode(sig.R)
	if err != nil {
		return nil, err
	}
	s, err := hexutil.Decode(sig.S)
	if err != nil {
		return nil, err
	}
	if len(r) != 32 || len(s) != 32 {
		return nil, errUnexpectedSigLen
	}
	v := sig.V - 27
	if v < 0 || v > 1 {
		return nil, errUnexpectedSigV
	}
	out := append(append([]byte{}, r...), s...)
	out = append(out, byte(v))
	return out, nil
}

var errUnexpectedSigLen = errors.New("unexpected signature length")
var errUnexpectedSigV = errors.New("unexpected signature v")
