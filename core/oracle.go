package core

// Oracle signature verification: the flare oracle is a fixed Ed25519
// multi-signer set (protocol.oracle.pubkeys), and a reveal is only accepted
// once at least `threshold` distinct members have signed the payload minus
// its secret (spec §4.5 step 5, §6).

import (
	"crypto/ed25519"
	"encoding/hex"
)

// OracleSignatureValid reports whether payload.OracleSignature verifies
// against at least cfg.Threshold of cfg.PubKeys, over
// payload.OracleSignaturePreimage().
//
// The payload carries a single `oracle_signature` field rather than a list
// of per-signer signatures. The check counts the listed pubkeys under which
// that one signature verifies and requires the count to reach the threshold;
// a threshold below 1 is treated as 1. A threshold above 1 is therefore not
// met by one signer whose key is listed once. Multi-signature aggregation
// (e.g. BLS) is not implemented (see DESIGN.md).
func OracleSignatureValid(payload *FlarePayload, cfg OracleConfig) bool {
	if len(cfg.PubKeys) == 0 {
		return false
	}
	preimage, err := SortedJSON(payload.OracleSignaturePreimage())
	if err != nil {
		return false
	}
	sigHex := payload.OracleSignature
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	threshold := cfg.Threshold
	if threshold < 1 {
		threshold = 1
	}

	verified := 0
	for _, pkHex := range cfg.PubKeys {
		pkBytes, err := hex.DecodeString(pkHex)
		if err != nil || len(pkBytes) != ed25519.PublicKeySize {
			continue
		}
		if ed25519.Verify(ed25519.PublicKey(pkBytes), preimage, sig) {
			verified++
		}
	}
	return verified >= threshold
}
