package core

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// fakeOracle returns a fixed flare observation, ignoring the requested slot.
type fakeOracle struct {
	payload *FlarePayload
	err     error
}

func (f *fakeOracle) Observe(ctx context.Context, slot uint64) (*FlarePayload, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.payload
	return &cp, nil
}

func consensusTestProtocol() *Protocol {
	return &Protocol{
		ChainID:            "argh-test",
		NativeAsset:        "ARGH",
		AllowedAssets:      []string{"ARGH"},
		Treasury:           "0x0000000000000000000000000000000000treas",
		Devs:               "0x0000000000000000000000000000000000devss",
		Orbital:            "0x0000000000000000000000000000000000orbit",
		TransferFeePercent: decimal.NewFromFloat(0.005),
		FeeDistribution: FeeDistribution{
			Devs:      decimal.NewFromFloat(0.25),
			Orbital:   decimal.NewFromFloat(0.25),
			Validator: decimal.NewFromFloat(0.5),
		},
		SoftCap:        decimal.NewFromInt(1_000_000),
		MintScale:      decimal.NewFromFloat(1.0),
		FluxScale:      decimal.NewFromFloat(100.0),
		FluxNormalizer: decimal.NewFromFloat(4.0),
		GeomagScale:    decimal.NewFromFloat(10.0),
	}
}

func TestBuildBlockIncludesRevealMintAndRewardTxs(t *testing.T) {
	p := consensusTestProtocol()
	_, validatorPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate validator key: %v", err)
	}
	selfAddr := AddressFromEd25519(validatorPriv.Public().(ed25519.PublicKey)).Hex()

	// committed is what the tip's producer committed to in the prior slot;
	// revealed is the same payload (as the mempool holds it for reveal).
	committed := &FlarePayload{
		ID:     "obs-1",
		Slot:   1,
		Class:  FlareClassA,
		Flux:   decimal.NewFromInt(100),
		Geomag: decimal.NewFromInt(20),
		Secret: "committed-secret",
	}
	preimage, err := SortedJSON(committed.CommitPreimage())
	if err != nil {
		t.Fatalf("SortedJSON failed: %v", err)
	}
	sum := sha256.Sum256(preimage)
	commitHash := hex.EncodeToString(sum[:])

	ledger := NewLedger(logrus.NewEntry(logrus.New()))
	genesis, err := NewGenesisBlock(p)
	if err != nil {
		t.Fatalf("NewGenesisBlock failed: %v", err)
	}
	if err := ledger.AppendGenesis(genesis); err != nil {
		t.Fatalf("AppendGenesis failed: %v", err)
	}
	tip := &Block{Index: 1, PrevHash: genesis.Hash, ProducerID: selfAddr, Slot: 1, FlareCommit: commitHash}
	if err := SignBlock(tip, validatorPriv); err != nil {
		t.Fatalf("SignBlock failed: %v", err)
	}
	singleValidator := NewStaticValidatorSet(map[string]ed25519.PublicKey{selfAddr: validatorPriv.Public().(ed25519.PublicKey)})
	if err := ledger.AppendBlock(tip, singleValidator, p, 0); err != nil {
		t.Fatalf("AppendBlock(tip) failed: %v", err)
	}

	// Credit a user so a pending transfer can be selected, exercising the
	// reward-tx aggregation path (step c).
	senderKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	amt, _ := ParseAmount("10")
	nonce := uint64(0)
	transferTx := &Transaction{
		Action:  ActionTransfer,
		Asset:   p.NativeAsset,
		Amount:  amt,
		To:      "0xbob",
		Nonce:   &nonce,
		ChainID: p.ChainID,
	}
	if err := SignWithPersonalSign(transferTx, crypto.FromECDSA(senderKey)); err != nil {
		t.Fatalf("sign transfer: %v", err)
	}
	ledger.Credit(transferTx.Meta.Sender, p.NativeAsset, AmountFromInt64(1000))

	mempool := NewMempool()
	reveal := &Transaction{
		Action:  ActionFlareReveal,
		Commit:  commitHash,
		Payload: committed,
		Sender:  selfAddr,
		ChainID: p.ChainID,
		TxID:    "reveal-1",
	}
	mempool.Add(reveal)
	mempool.Add(transferTx)

	oracle := &fakeOracle{payload: &FlarePayload{ID: "obs-2", Class: FlareClassA, Flux: decimal.NewFromInt(50), Geomag: decimal.NewFromInt(10)}}

	cfg := SlotLoopConfig{Self: selfAddr, Key: validatorPriv}
	loop := NewSlotLoop(cfg, ledger, mempool, singleValidator, p, oracle, nil, nil, nil)

	block, err := loop.buildBlock(2, tip)
	if err != nil {
		t.Fatalf("buildBlock failed: %v", err)
	}

	var sawReveal, sawMint, sawTransfer bool
	var rewardCount int
	for _, tx := range block.Transactions {
		switch tx.Action {
		case ActionFlareReveal:
			sawReveal = true
		case ActionMint:
			sawMint = true
			if !EqualAddressString(tx.To, p.Treasury) {
				t.Fatalf("expected mint tx to credit treasury, got %s", tx.To)
			}
		case ActionTransfer:
			sawTransfer = true
		case ActionReward:
			rewardCount++
		}
	}
	if !sawReveal {
		t.Fatalf("expected reveal tx in built block, got %+v", block.Transactions)
	}
	if !sawMint {
		t.Fatalf("expected system mint tx from the treasury delta, got %+v", block.Transactions)
	}
	if !sawTransfer {
		t.Fatalf("expected the pending user transfer to be selected, got %+v", block.Transactions)
	}
	if rewardCount == 0 {
		t.Fatalf("expected at least one reward tx from the transfer's fee split, got %+v", block.Transactions)
	}
	if block.FlareCommit == "" {
		t.Fatalf("expected a new commit to be set on the built block")
	}
	if block.Hash == "" || block.Signature == "" {
		t.Fatalf("expected built block to be hashed and signed")
	}
}

func TestBuildBlockPropagatesOracleUnavailable(t *testing.T) {
	p := consensusTestProtocol()
	_, validatorPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate validator key: %v", err)
	}
	selfAddr := AddressFromEd25519(validatorPriv.Public().(ed25519.PublicKey)).Hex()

	ledger := NewLedger(nil)
	genesis, _ := NewGenesisBlock(p)
	if err := ledger.AppendGenesis(genesis); err != nil {
		t.Fatalf("AppendGenesis failed: %v", err)
	}

	oracle := &fakeOracle{err: &OracleUnavailableError{Reason: "offline"}}
	cfg := SlotLoopConfig{Self: selfAddr, Key: validatorPriv}
	loop := NewSlotLoop(cfg, ledger, NewMempool(), NewStaticValidatorSet(nil), p, oracle, nil, nil, nil)

	if _, err := loop.buildBlock(1, genesis); err == nil {
		t.Fatalf("expected buildBlock to propagate oracle unavailability")
	}
}
