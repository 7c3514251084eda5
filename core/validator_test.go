package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestValidator(t *testing.T) (string, ed25519.PrivateKey, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return AddressFromEd25519(pub).Hex(), priv, pub
}

func TestValidateBlockAcceptsWellFormedBlock(t *testing.T) {
	p := testingProtocolFull()
	addr, priv, pub := newTestValidator(t)
	p.Treasury = "0xtreasury"
	validators := NewStaticValidatorSet(map[string]ed25519.PublicKey{addr: pub})

	genesis, err := NewGenesisBlock(p)
	if err != nil {
		t.Fatalf("NewGenesisBlock failed: %v", err)
	}

	ledger := NewLedger(nil)
	if err := ledger.AppendGenesis(genesis); err != nil {
		t.Fatalf("AppendGenesis failed: %v", err)
	}

	slot := uint64(1)
	leader := SelectLeader(validators.Addresses(), genesis.Hash, slot, 0)
	if leader != addr {
		t.Skip("generated validator did not win leader election for this seed; non-deterministic test setup")
	}

	block := &Block{
		Index:      1,
		PrevHash:   genesis.Hash,
		ProducerID: addr,
		Slot:       slot,
	}
	if err := SignBlock(block, priv); err != nil {
		t.Fatalf("SignBlock failed: %v", err)
	}

	if err := ledger.AppendBlock(block, validators, p, 0); err != nil {
		t.Fatalf("AppendBlock failed: %v", err)
	}
	if ledger.Tip().Hash != block.Hash {
		t.Fatalf("expected tip to be the newly appended block")
	}
}

func TestValidateBlockRejectsWrongSlotOrder(t *testing.T) {
	p := testingProtocolFull()
	addr, priv, pub := newTestValidator(t)
	validators := NewStaticValidatorSet(map[string]ed25519.PublicKey{addr: pub})
	genesis, _ := NewGenesisBlock(p)
	ledger := NewLedger(nil)
	if err := ledger.AppendGenesis(genesis); err != nil {
		t.Fatalf("AppendGenesis failed: %v", err)
	}

	block := &Block{Index: 1, PrevHash: genesis.Hash, ProducerID: addr, Slot: 0} // slot must be > 0
	if err := SignBlock(block, priv); err != nil {
		t.Fatalf("SignBlock failed: %v", err)
	}
	if err := ledger.AppendBlock(block, validators, p, 0); err == nil {
		t.Fatalf("expected rejection for non-advancing slot")
	}
}

func TestValidateBlockRejectsRevealCommitMismatch(t *testing.T) {
	p := testingProtocolFull()
	addr, priv, pub := newTestValidator(t)
	validators := NewStaticValidatorSet(map[string]ed25519.PublicKey{addr: pub})

	genesis, err := NewGenesisBlock(p)
	if err != nil {
		t.Fatalf("NewGenesisBlock failed: %v", err)
	}
	ledger := NewLedger(nil)
	if err := ledger.AppendGenesis(genesis); err != nil {
		t.Fatalf("AppendGenesis failed: %v", err)
	}

	committed := &FlarePayload{ID: "obs-1", Slot: 1, Class: FlareClassA, Flux: decimal.NewFromInt(10), Geomag: decimal.NewFromInt(5), Secret: "s3cr3t"}
	preimage, err := SortedJSON(committed.CommitPreimage())
	if err != nil {
		t.Fatalf("SortedJSON failed: %v", err)
	}
	sum := sha256.Sum256(preimage)
	commitHash := hex.EncodeToString(sum[:])

	block1 := &Block{Index: 1, PrevHash: genesis.Hash, ProducerID: addr, Slot: 1, FlareCommit: commitHash}
	if err := SignBlock(block1, priv); err != nil {
		t.Fatalf("SignBlock failed: %v", err)
	}
	if err := ledger.AppendBlock(block1, validators, p, 0); err != nil {
		t.Fatalf("AppendBlock(block1) failed: %v", err)
	}

	// The revealed payload differs from what was committed, so its
	// CommitPreimage hash will not match block1.FlareCommit.
	tampered := &FlarePayload{ID: "obs-1", Slot: 1, Class: FlareClassA, Flux: decimal.NewFromInt(999), Geomag: decimal.NewFromInt(5), Secret: "s3cr3t"}
	reveal := &Transaction{
		Action:  ActionFlareReveal,
		Commit:  commitHash,
		Payload: tampered,
		Sender:  addr,
		ChainID: p.ChainID,
	}
	block2 := &Block{Index: 2, PrevHash: block1.Hash, ProducerID: addr, Slot: 2, Transactions: []*Transaction{reveal}}
	if err := SignBlock(block2, priv); err != nil {
		t.Fatalf("SignBlock failed: %v", err)
	}
	if err := ledger.AppendBlock(block2, validators, p, 0); err == nil {
		t.Fatalf("expected rejection for reveal commit mismatch")
	}
}

func TestValidateBlockRejectsBadSignature(t *testing.T) {
	p := testingProtocolFull()
	addr, _, pub := newTestValidator(t)
	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
	validators := NewStaticValidatorSet(map[string]ed25519.PublicKey{addr: pub})
	genesis, _ := NewGenesisBlock(p)
	ledger := NewLedger(nil)
	if err := ledger.AppendGenesis(genesis); err != nil {
		t.Fatalf("AppendGenesis failed: %v", err)
	}

	block := &Block{Index: 1, PrevHash: genesis.Hash, ProducerID: addr, Slot: 1}
	if err := SignBlock(block, otherPriv); err != nil { // signed by the wrong key
		t.Fatalf("SignBlock failed: %v", err)
	}
	if err := ledger.AppendBlock(block, validators, p, 0); err == nil {
		t.Fatalf("expected rejection for signature mismatch")
	}
}
