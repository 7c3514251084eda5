package core

// Ledger is the materialized chain state: balances and nonces as of the
// current tip, plus the full block list. It implements BalanceState.
// Grounded on the teacher's core/ledger.go (in-memory maps behind a mutex,
// replayed/persisted rather than recomputed from scratch on every query),
// generalized from its UTXO/account hybrid down to the spec's flat
// "<address>:<asset>" balance map.

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Ledger holds the chain and its derived balances/nonces in memory.
type Ledger struct {
	mu sync.RWMutex

	blocks   []*Block
	balances map[string]Amount
	nonces   map[string]uint64

	log *logrus.Entry
}

// NewLedger returns an empty ledger. Callers install the genesis block via
// AppendGenesis before any other use.
func NewLedger(log *logrus.Entry) *Ledger {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ledger{
		balances: make(map[string]Amount),
		nonces:   make(map[string]uint64),
		log:      log.WithField("component", "ledger"),
	}
}

func balanceKey(owner, asset string) string {
	return owner + ":" + asset
}

// Balance implements BalanceView.
func (l *Ledger) Balance(owner, asset string) Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey(owner, asset)]
}

// NonceOf implements BalanceView.
func (l *Ledger) NonceOf(sender string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nonces[sender]
}

// Credit implements BalanceState.
func (l *Ledger) Credit(owner, asset string, amount Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := balanceKey(owner, asset)
	l.balances[key] = l.balances[key].Add(amount)
}

// Debit implements BalanceState. Negative resulting balances are permitted
// at this layer; Validate is responsible for rejecting insufficient-balance
// transactions before Apply runs (spec §3 "Balances").
func (l *Ledger) Debit(owner, asset string, amount Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := balanceKey(owner, asset)
	l.balances[key] = l.balances[key].Sub(amount)
}

// BumpNonce implements BalanceState.
func (l *Ledger) BumpNonce(sender string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonces[sender]++
}

// Tip returns the current chain head, or nil if the chain is empty.
func (l *Ledger) Tip() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.blocks) == 0 {
		return nil
	}
	return l.blocks[len(l.blocks)-1]
}

// Height returns the number of blocks in the chain.
func (l *Ledger) Height() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// BlockAt returns the block at the given index, or nil if out of range.
func (l *Ledger) BlockAt(index uint64) *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= uint64(len(l.blocks)) {
		return nil
	}
	return l.blocks[index]
}

// BlocksFrom returns up to limit blocks starting at index "from" (used by
// P2P paged sync, spec §4.8).
func (l *Ledger) BlocksFrom(from uint64, limit int) []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from >= uint64(len(l.blocks)) {
		return nil
	}
	end := from + uint64(limit)
	if end > uint64(len(l.blocks)) {
		end = uint64(len(l.blocks))
	}
	out := make([]*Block, end-from)
	copy(out, l.blocks[from:end])
	return out
}

// AppendGenesis installs the genesis block, which carries no transactions
// to apply and whose balances start at zero.
func (l *Ledger) AppendGenesis(b *Block) error {
	if err := ValidateGenesis(b); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocks) != 0 {
		return fmt.Errorf("ledger: genesis already installed")
	}
	l.blocks = append(l.blocks, b)
	l.log.WithField("hash", b.Hash).Info("installed genesis block")
	return nil
}

// AppendBlock validates b against the current tip and, on success, applies
// its transactions to the ledger's balances/nonces and appends it to the
// chain. validators resolves producer keys for signature/leader checks.
func (l *Ledger) AppendBlock(b *Block, validators ValidatorSet, p *Protocol, attempt int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocks) == 0 {
		return fmt.Errorf("ledger: genesis not installed")
	}
	tip := l.blocks[len(l.blocks)-1]
	// Validate against a copy of the committed state: l's own Balance/NonceOf
	// take l.mu, which is already held here, and a rejected block must leave
	// the ledger unchanged.
	next := NewLedger(l.log)
	for k, v := range l.balances {
		next.balances[k] = v
	}
	for k, v := range l.nonces {
		next.nonces[k] = v
	}
	if err := ValidateBlock(b, tip, validators, next, p, attempt); err != nil {
		return err
	}
	l.balances = next.balances
	l.nonces = next.nonces
	l.blocks = append(l.blocks, b)
	l.log.WithFields(logrus.Fields{
		"index": b.Index,
		"hash":  b.Hash,
		"slot":  b.Slot,
	}).Info("appended block")
	return nil
}

// ReplaceTip swaps out the current tip block for a competing block at the
// same index, re-validating against the predecessor and re-deriving
// balances/nonces from scratch. Used for the same-slot fork tie-break
// (spec §4.7 step 5(live-block)/§4.8 "same-slot fork tie-break").
func (l *Ledger) ReplaceTip(b *Block, validators ValidatorSet, p *Protocol, attempt int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocks) < 2 {
		return fmt.Errorf("ledger: cannot replace genesis")
	}
	predecessor := l.blocks[len(l.blocks)-2]

	replay := NewLedger(l.log)
	replay.blocks = append([]*Block(nil), l.blocks[:len(l.blocks)-1]...)
	balances, nonces := l.balancesAsOf(predecessor.Index, p)
	for k, v := range balances {
		replay.balances[k] = v
	}
	for k, v := range nonces {
		replay.nonces[k] = v
	}
	if err := ValidateBlock(b, predecessor, validators, replay, p, attempt); err != nil {
		return err
	}
	l.blocks[len(l.blocks)-1] = b
	l.balances = replay.balances
	l.nonces = replay.nonces
	l.log.WithFields(logrus.Fields{"index": b.Index, "hash": b.Hash}).Warn("replaced tip block on fork tie-break")
	return nil
}

// balancesAsOf recomputes balances/nonces by replaying every block up to
// and including the given index. It is only ever invoked for fork
// resolution, which the spec bounds to a single block of depth (Non-goals:
// "chain reorganizations deeper than one block"), so this is not a hot
// path.
func (l *Ledger) balancesAsOf(index uint64, p *Protocol) (map[string]Amount, map[string]uint64) {
	replay := NewLedger(l.log)
	for _, b := range l.blocks {
		if b.Index > index {
			break
		}
		if b.Index == 0 {
			replay.blocks = append(replay.blocks, b)
			continue
		}
		for _, tx := range b.Transactions {
			_ = Apply(replay, tx, p, tx.IsSystem())
			if !tx.IsSystem() && tx.Meta != nil {
				replay.BumpNonce(tx.Meta.Sender)
			}
		}
		replay.blocks = append(replay.blocks, b)
	}
	return replay.balances, replay.nonces
}
