package core

// C6: consensus / slot loop. A single cooperative task computing the
// current slot from wall time, electing a leader, and building/signing a
// block when elected (spec §4.7). Grounded on the teacher's
// SynnergyConsensus ctx.Done()-driven ticker loop (core/consensus.go),
// replacing its PoH/PoW sub-block machinery with the spec's flat
// slot/leader model.

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Broadcaster is the P2P surface the slot loop needs: publish a new block
// and gossip a transaction. After producing a block, the loop passes the
// flare_reveal tx included in that block (if any) to BroadcastTx; it does not
// build or broadcast a reveal for the commit of the block it just produced.
type Broadcaster interface {
	BroadcastBlock(b *Block)
	BroadcastTx(tx *Transaction)
}

// OracleObserver fetches the signed flare observation for a given slot
// (spec §6's external oracle collaborator).
type OracleObserver interface {
	Observe(ctx context.Context, slot uint64) (*FlarePayload, error)
}

// SlotLoopConfig parameterizes Run.
type SlotLoopConfig struct {
	Self           string
	Key            ed25519.PrivateKey
	SlotDuration   time.Duration
	SlotTolerance  time.Duration
	PropagateWait  time.Duration
}

// SlotLoop drives block production for one node (spec §4.7).
type SlotLoop struct {
	cfg        SlotLoopConfig
	ledger     *Ledger
	mempool    *Mempool
	validators ValidatorSet
	protocol   *Protocol
	oracle     OracleObserver
	net        Broadcaster
	equiv      *EquivocationRegistry
	log        *logrus.Entry

	pendingSecrets map[uint64]string // slot -> secret of the commit made in that slot; recorded, not read back by the loop
}

// NewSlotLoop builds a SlotLoop wired to its collaborators.
func NewSlotLoop(cfg SlotLoopConfig, ledger *Ledger, mempool *Mempool, validators ValidatorSet, protocol *Protocol, oracle OracleObserver, net Broadcaster, equiv *EquivocationRegistry, log *logrus.Entry) *SlotLoop {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SlotLoop{
		cfg:            cfg,
		ledger:         ledger,
		mempool:        mempool,
		validators:     validators,
		protocol:       protocol,
		oracle:         oracle,
		net:            net,
		equiv:          equiv,
		log:            log.WithField("component", "consensus"),
		pendingSecrets: make(map[uint64]string),
	}
}

// Run executes the slot loop until ctx is cancelled (spec §4.7 steps 1-5).
func (s *SlotLoop) Run(ctx context.Context) {
	s.log.Info("slot loop started")
	for {
		slotDur := s.cfg.SlotDuration
		now := time.Now()
		slot := uint64(now.UnixNano() / int64(slotDur))
		slotStart := time.Unix(0, int64(slot)*int64(slotDur))

		select {
		case <-ctx.Done():
			s.log.Info("slot loop stopped")
			return
		case <-time.After(time.Until(slotStart)):
		}

		if time.Now().After(slotStart.Add(s.cfg.SlotTolerance)) {
			continue // step 1: too late, skip slot
		}

		tip := s.ledger.Tip()
		if tip == nil {
			continue
		}
		if tip.Slot == slot {
			continue // step 2: already produced/received this slot
		}

		if err := s.tryProduce(ctx, slot, tip); err != nil {
			s.log.WithError(err).Warn("slot production failed")
		}
	}
}

func (s *SlotLoop) tryProduce(ctx context.Context, slot uint64, tip *Block) error {
	const attempt = 0
	leader := SelectLeader(s.validators.Addresses(), tip.Hash, slot, attempt)
	if !EqualAddressString(leader, s.cfg.Self) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.PropagateWait):
		}
		if s.ledger.Tip().Slot == slot {
			return nil // block arrived while we waited
		}
		return nil // not leader; another validator's block may still arrive next slot
	}

	block, err := s.buildBlock(slot, tip)
	if err != nil {
		if _, ok := err.(*OracleUnavailableError); ok {
			s.log.WithField("slot", slot).Warn("oracle unavailable, skipping slot")
			return nil
		}
		return err
	}

	if err := s.equiv.Check(s.cfg.Self, slot, block.Hash); err != nil {
		return err
	}
	if err := s.ledger.AppendBlock(block, s.validators, s.protocol, attempt); err != nil {
		return fmt.Errorf("append own block: %w", err)
	}

	var included []string
	for _, tx := range block.Transactions {
		included = append(included, tx.TxID)
	}
	s.mempool.Remove(included...)
	s.equiv.Prune(slot)

	s.net.BroadcastBlock(block)
	if reveal := findFlareReveal(block.Transactions); reveal != nil {
		s.net.BroadcastTx(reveal)
	}
	return nil
}

// buildBlock implements spec §4.7 step 4.
func (s *SlotLoop) buildBlock(slot uint64, tip *Block) (*Block, error) {
	var txs []*Transaction

	// a. Reveal phase.
	if tip.FlareCommit != "" {
		if reveal, ok := s.mempool.FindReveal(tip.FlareCommit, tip.ProducerID); ok {
			txs = append(txs, reveal)
			treasuryBalance := s.ledger.Balance(s.protocol.Treasury, s.protocol.NativeAsset)
			delta, action, err := ComputeTreasuryDelta(reveal.Payload, treasuryBalance, s.protocol)
			if err != nil {
				return nil, fmt.Errorf("compute treasury delta: %w", err)
			}
			if action != TreasuryNone {
				systemTx := &Transaction{
					Action:  ActionMint,
					Asset:   s.protocol.NativeAsset,
					Amount:  delta,
					To:      s.protocol.Treasury,
					ChainID: s.protocol.ChainID,
				}
				if action == TreasuryBurn {
					systemTx.Action = ActionBurn
				}
				txid, err := ComputeTxID(systemTx)
				if err != nil {
					return nil, err
				}
				systemTx.TxID = txid
				txs = append(txs, systemTx)
			}
		}
	}

	// b. Select and validate pending user transactions against a scratch
	// ledger seeded from the current tip's balances, applying selections
	// incrementally so later txs see earlier ones' effects.
	scratch := newScratchBalances(s.ledger)
	var feeTotals FeeAmounts
	for _, tx := range s.mempool.UserTransactionsSorted() {
		if err := Validate(tx, scratch, s.protocol, false); err != nil {
			s.mempool.Remove(tx.TxID) // discard invalid
			continue
		}
		if err := Apply(scratch, tx, s.protocol, false); err != nil {
			s.mempool.Remove(tx.TxID)
			continue
		}
		scratch.BumpNonce(tx.Meta.Sender)
		if tx.Action == ActionTransfer && tx.Fee != nil {
			feeTotals.Devs = feeTotals.Devs.Add(tx.Fee.Devs)
			feeTotals.Orbital = feeTotals.Orbital.Add(tx.Fee.Orbital)
			feeTotals.Validator = feeTotals.Validator.Add(tx.Fee.Validator)
		}
		txs = append(txs, tx)
	}

	// c. Aggregate fee credits into reward system txs.
	txs = append(txs, s.rewardTxs(feeTotals)...)

	// d. New commit.
	observation, err := s.oracle.Observe(context.Background(), slotMinusOne(slot))
	if err != nil {
		return nil, &OracleUnavailableError{Reason: err.Error()}
	}
	secret, err := randomSecret()
	if err != nil {
		return nil, fmt.Errorf("generate commit secret: %w", err)
	}
	observation.Secret = secret
	observation.Slot = slot
	preimage, err := SortedJSON(observation.CommitPreimage())
	if err != nil {
		return nil, fmt.Errorf("encode commit preimage: %w", err)
	}
	commit := sha256Hex(preimage)
	s.pendingSecrets[slot] = secret

	b := &Block{
		Index:        tip.Index + 1,
		PrevHash:     tip.Hash,
		ProducerID:   s.cfg.Self,
		Slot:         slot,
		Transactions: txs,
		FlareCommit:  commit,
	}
	if err := SignBlock(b, s.cfg.Key); err != nil {
		return nil, fmt.Errorf("sign block: %w", err)
	}
	return b, nil
}

func (s *SlotLoop) rewardTxs(fees FeeAmounts) []*Transaction {
	var out []*Transaction
	add := func(to string, amount Amount) {
		if amount.IsZero() {
			return
		}
		tx := &Transaction{
			Action:  ActionReward,
			Asset:   s.protocol.NativeAsset,
			Amount:  amount,
			To:      to,
			ChainID: s.protocol.ChainID,
		}
		txid, err := ComputeTxID(tx)
		if err != nil {
			return
		}
		tx.TxID = txid
		out = append(out, tx)
	}
	add(s.protocol.Devs, fees.Devs)
	add(s.protocol.Orbital, fees.Orbital)
	add(s.cfg.Self, fees.Validator)
	return out
}

func findFlareReveal(txs []*Transaction) *Transaction {
	for _, tx := range txs {
		if tx.Action == ActionFlareReveal {
			return tx
		}
	}
	return nil
}

func slotMinusOne(slot uint64) uint64 {
	if slot == 0 {
		return 0
	}
	return slot - 1
}

func randomSecret() (string, error) {
	buf := make([]byte, 16) // 128-bit randomness (spec §4.7 step d)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// scratchBalances overlays in-progress speculative balance/nonce changes
// on top of a Ledger's committed state, without mutating the ledger, so
// that mempool selection (spec §4.7 step 4b) can validate each candidate
// transaction against the effect of every transaction selected before it.
type scratchBalances struct {
	base     *Ledger
	balances map[string]Amount
	nonces   map[string]uint64
}

func newScratchBalances(base *Ledger) *scratchBalances {
	return &scratchBalances{
		base:     base,
		balances: make(map[string]Amount),
		nonces:   make(map[string]uint64),
	}
}

func (s *scratchBalances) Balance(owner, asset string) Amount {
	key := balanceKey(owner, asset)
	if v, ok := s.balances[key]; ok {
		return v
	}
	return s.base.Balance(owner, asset)
}

func (s *scratchBalances) NonceOf(sender string) uint64 {
	if v, ok := s.nonces[sender]; ok {
		return v
	}
	return s.base.NonceOf(sender)
}

func (s *scratchBalances) Credit(owner, asset string, amount Amount) {
	key := balanceKey(owner, asset)
	s.balances[key] = s.Balance(owner, asset).Add(amount)
}

func (s *scratchBalances) Debit(owner, asset string, amount Amount) {
	key := balanceKey(owner, asset)
	s.balances[key] = s.Balance(owner, asset).Sub(amount)
}

func (s *scratchBalances) BumpNonce(sender string) {
	s.nonces[sender] = s.NonceOf(sender) + 1
}
