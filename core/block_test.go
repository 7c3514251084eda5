package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestGenesisBlockRoundTrip(t *testing.T) {
	p := testingProtocolFull()
	b, err := NewGenesisBlock(p)
	if err != nil {
		t.Fatalf("NewGenesisBlock failed: %v", err)
	}
	if err := ValidateGenesis(b); err != nil {
		t.Fatalf("ValidateGenesis failed: %v", err)
	}
}

func TestSignAndVerifyBlock(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	b := &Block{
		Index:      1,
		PrevHash:   GenesisPrevHash,
		ProducerID: AddressFromEd25519(pub).Hex(),
		Slot:       1,
	}
	if err := SignBlock(b, priv); err != nil {
		t.Fatalf("SignBlock failed: %v", err)
	}
	if !VerifyBlockSignature(b, pub) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifyBlockSignatureRejectsTamperedHash(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	b := &Block{Index: 1, PrevHash: GenesisPrevHash, Slot: 1}
	if err := SignBlock(b, priv); err != nil {
		t.Fatalf("SignBlock failed: %v", err)
	}
	b.Hash = "tampered"
	if VerifyBlockSignature(b, pub) {
		t.Fatalf("expected signature verification to fail on tampered hash")
	}
}

func TestBlockHashChangesWithTransactions(t *testing.T) {
	p := testingProtocolFull()
	b1, _ := NewGenesisBlock(p)
	b2 := &Block{Index: 1, PrevHash: b1.Hash, ProducerID: AddressZero.Hex(), Slot: 1}
	h1, err := b2.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	amt, _ := ParseAmount("1")
	b2.Transactions = []*Transaction{{Action: ActionReward, Asset: "ARGH", Amount: amt, To: "0xbob", ChainID: p.ChainID}}
	h2, err := b2.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected hash to change when transactions change")
	}
}
