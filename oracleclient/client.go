// Package oracleclient implements the node's side of the external flare
// oracle: a signed REST endpoint returning flux/geomag/class observations
// for a given slot (spec §1 "the oracle service itself (treated as a
// signed REST endpoint)"). The request/response plumbing uses net/http
// directly — none of the example repos exercise an outbound HTTP client
// library (their chi/gorilla/websocket dependencies all serve HTTP, they
// don't call it), so this one ambient leaf is left on the standard
// library; see DESIGN.md.
package oracleclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/argh-chain/node/core"
)

// wireObservation is the oracle's JSON response shape.
type wireObservation struct {
	ID              string          `json:"id"`
	Slot            uint64          `json:"slot"`
	Class           string          `json:"class"`
	Flux            decimal.Decimal `json:"flux"`
	Geomag          decimal.Decimal `json:"geomag"`
	OracleSignature string          `json:"oracle_signature"`
}

// Client fetches and authenticates flare observations (implements
// core.OracleObserver).
type Client struct {
	baseURL string
	http    *http.Client
	oracle  core.OracleConfig
	log     *logrus.Entry
}

// New returns a Client pointed at baseURL, verifying responses against the
// protocol's configured oracle signer set.
func New(baseURL string, timeout time.Duration, oracle core.OracleConfig, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		oracle:  oracle,
		log:     log.WithField("component", "oracleclient"),
	}
}

// Observe fetches and verifies the flare observation for the given slot
// (spec §4.7 step 4d; §6). It returns *core.OracleUnavailableError on any
// network, decode, or signature-verification failure, matching the
// producer's "skip the slot" behavior (spec §7).
func (c *Client) Observe(ctx context.Context, slot uint64) (*core.FlarePayload, error) {
	url := fmt.Sprintf("%s/flare/%d", c.baseURL, slot)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &core.OracleUnavailableError{Reason: err.Error()}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &core.OracleUnavailableError{Reason: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &core.OracleUnavailableError{Reason: fmt.Sprintf("oracle returned status %d", resp.StatusCode)}
	}

	var wire wireObservation
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &core.OracleUnavailableError{Reason: fmt.Sprintf("decode observation: %v", err)}
	}

	payload := &core.FlarePayload{
		ID:              wire.ID,
		Slot:            wire.Slot,
		Class:           core.FlareClass(wire.Class),
		Flux:            wire.Flux,
		Geomag:          wire.Geomag,
		OracleSignature: wire.OracleSignature,
	}
	if !core.OracleSignatureValid(payload, c.oracle) {
		return nil, &core.OracleUnavailableError{Reason: "oracle signature verification failed"}
	}
	c.log.WithFields(logrus.Fields{"slot": slot, "class": payload.Class}).Debug("flare observation accepted")
	return payload, nil
}
