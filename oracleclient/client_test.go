package oracleclient

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/argh-chain/node/core"
)

func signedObservation(t *testing.T, priv ed25519.PrivateKey, slot uint64) wireObservation {
	t.Helper()
	payload := &core.FlarePayload{
		ID:     "obs-1",
		Slot:   slot,
		Class:  core.FlareClassA,
		Flux:   decimal.NewFromInt(10),
		Geomag: decimal.NewFromInt(5),
	}
	preimage, err := core.SortedJSON(payload.OracleSignaturePreimage())
	if err != nil {
		t.Fatalf("SortedJSON failed: %v", err)
	}
	sig := ed25519.Sign(priv, preimage)
	return wireObservation{
		ID:              payload.ID,
		Slot:            payload.Slot,
		Class:           string(payload.Class),
		Flux:            payload.Flux,
		Geomag:          payload.Geomag,
		OracleSignature: hex.EncodeToString(sig),
	}
}

func TestObserveAcceptsValidSignedResponse(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(signedObservation(t, priv, 7))
	}))
	defer srv.Close()

	cfg := core.OracleConfig{PubKeys: []string{hex.EncodeToString(pub)}, Threshold: 1}
	client := New(srv.URL, time.Second, cfg, nil)
	payload, err := client.Observe(context.Background(), 7)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if payload.Slot != 7 || payload.Class != core.FlareClassA {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestObserveRejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(signedObservation(t, otherPriv, 7)) // signed by an unauthorized key
	}))
	defer srv.Close()

	cfg := core.OracleConfig{PubKeys: []string{hex.EncodeToString(pub)}, Threshold: 1}
	client := New(srv.URL, time.Second, cfg, nil)
	if _, err := client.Observe(context.Background(), 7); err == nil {
		t.Fatalf("expected OracleUnavailableError for unauthorized signature")
	} else if _, ok := err.(*core.OracleUnavailableError); !ok {
		t.Fatalf("expected *core.OracleUnavailableError, got %T", err)
	}
}

func TestObserveRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := core.OracleConfig{PubKeys: []string{"deadbeef"}, Threshold: 1}
	client := New(srv.URL, time.Second, cfg, nil)
	if _, err := client.Observe(context.Background(), 1); err == nil {
		t.Fatalf("expected error for non-200 oracle response")
	}
}
