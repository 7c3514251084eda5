package core

// C1: canonical codec. Two canonical forms are defined over transactions,
// plus a generic sorted form used for oracle payloads and flare commit
// preimages (spec §4.1). Both tx forms are UTF-8 JSON with no insignificant
// whitespace; the signing form uses a fixed, non-alphabetical key order and
// the consensus form sorts keys lexicographically.
//
// The signing form never includes "txid" — the id is the hash of the form,
// so it cannot appear inside the hashed bytes. Both TxID and the wallet
// signature are therefore computed over the same bytes.

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// signingKeyOrder is the literal key order of the signing form (spec §4.1).
// It is part of the wire contract: DO NOT sort it.
var signingKeyOrder = []string{"action", "asset", "amount", "to", "nonce", "chainId"}

// canonicalFields returns the logical key/value set used by both canonical
// forms, restricted to the keys applicable to tx.Action. Keys not
// applicable to the action are omitted entirely rather than emitted empty,
// matching "omitting keys absent from the input".
func canonicalFields(tx *Transaction) map[string]interface{} {
	f := map[string]interface{}{
		"action":  tx.Action,
		"chainId": tx.ChainID,
	}
	if tx.Action == ActionFlareReveal {
		f["commit"] = tx.Commit
		f["payload"] = tx.Payload
		f["sender"] = tx.Sender
		return f
	}
	f["asset"] = tx.Asset
	f["amount"] = tx.Amount
	if tx.To != "" {
		f["to"] = tx.To
	}
	if tx.Nonce != nil {
		f["nonce"] = *tx.Nonce
	}
	if tx.Action == ActionAddLiquidity {
		f["pool_id"] = tx.PoolID
		f["asset_paired"] = tx.AssetPaired
		f["amount_paired"] = tx.AmountPaired
	}
	return f
}

// SigningForm renders tx in the fixed-order signing form (spec §4.1). It is
// used both to compute TxID and as the message signed via personal_sign.
func SigningForm(tx *Transaction) ([]byte, error) {
	fields := canonicalFields(tx)
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	emit := func(key string) error {
		v, ok := fields[key]
		if !ok {
			return nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode field %q: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(key)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(raw)
		return nil
	}
	if tx.Action == ActionFlareReveal {
		for _, k := range []string{"action", "commit", "payload", "sender", "chainId"} {
			if err := emit(k); err != nil {
				return nil, err
			}
		}
	} else {
		for _, k := range signingKeyOrder {
			if err := emit(k); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ConsensusForm renders tx with keys sorted lexicographically (spec §4.1),
// used inside block hashes.
func ConsensusForm(tx *Transaction) ([]byte, error) {
	return SortedJSON(canonicalFields(tx))
}

// SortedJSON renders v as compact JSON with all object keys sorted
// lexicographically at every nesting level — the generic sorted form used
// for oracle payloads, flare commit preimages, and block hash preimages
// (spec §4.1). It round-trips through a generic map/slice representation so
// that struct field order and json tag order are irrelevant: Go's
// encoding/json sorts map[string]any keys on Marshal, which this relies on.
func SortedJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sorted json: marshal: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("sorted json: unmarshal: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("sorted json: re-marshal: %w", err)
	}
	return out, nil
}

// ComputeTxID returns hex(SHA256(signing_form)) for tx (spec §4.1).
func ComputeTxID(tx *Transaction) (string, error) {
	form, err := SigningForm(tx)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(form)
	return hex.EncodeToString(sum[:]), nil
}

// personalSignPrefix is Ethereum's "personal_sign" message prefix (spec
// §4.3 step 3).
func personalSignMessage(form []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(form))
	return append([]byte(prefix), form...)
}
