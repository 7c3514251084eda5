package core

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestSignWithPersonalSignRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	amt, _ := ParseAmount("5")
	nonce := uint64(0)
	tx := &Transaction{
		Action:  ActionTransfer,
		Asset:   "ARGH",
		Amount:  amt,
		To:      "0xbob",
		Nonce:   &nonce,
		ChainID: "argh-test",
	}

	privBytes := crypto.FromECDSA(key)
	if err := SignWithPersonalSign(tx, privBytes); err != nil {
		t.Fatalf("SignWithPersonalSign failed: %v", err)
	}
	if tx.Meta == nil || tx.Meta.Signature == "" {
		t.Fatalf("expected signature to be populated")
	}

	recovered, err := recoverSender(tx)
	if err != nil {
		t.Fatalf("recoverSender failed: %v", err)
	}
	if !EqualAddressString(recovered, tx.Meta.Sender) {
		t.Fatalf("recovered address %s does not match claimed sender %s", recovered, tx.Meta.Sender)
	}
}

func TestRecoverSenderRejectsTamperedTx(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	amt, _ := ParseAmount("5")
	nonce := uint64(0)
	tx := &Transaction{
		Action:  ActionTransfer,
		Asset:   "ARGH",
		Amount:  amt,
		To:      "0xbob",
		Nonce:   &nonce,
		ChainID: "argh-test",
	}
	if err := SignWithPersonalSign(tx, crypto.FromECDSA(key)); err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	tx.Amount, _ = ParseAmount("500") // tamper after signing
	if _, err := recoverSender(tx); err == nil {
		t.Fatalf("expected recovery/verification to fail for tampered tx")
	}
}
