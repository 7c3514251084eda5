package core

// Mempool is the pending-transaction pool, deduplicated by txid. Grounded
// on the teacher's TxPool map-behind-a-mutex pattern (core/ledger.go),
// generalized to carry the structural pre-checks spec §4.8's TX gossip
// requires before admission.

import (
	"sort"
	"sync"
)

// Mempool holds pending transactions keyed by txid.
type Mempool struct {
	mu  sync.RWMutex
	txs map[string]*Transaction
}

// NewMempool returns an empty mempool.
func NewMempool() *Mempool {
	return &Mempool{txs: make(map[string]*Transaction)}
}

// StructuralCheck performs the cheap pre-admission check spec §4.8
// describes for gossiped transactions: required fields present, amount
// positive, action recognized, and flare_reveal's required sub-fields
// present. It does not check signatures, nonces, or balances — that full
// validation happens against chain state in Validate.
func StructuralCheck(tx *Transaction) error {
	if tx.Action == "" {
		return invalidTx("missing action")
	}
	switch tx.Action {
	case ActionTransfer, ActionMint, ActionBurn, ActionMintBridge, ActionAddLiquidity, ActionReward:
		if tx.Asset == "" {
			return invalidTx("missing asset")
		}
		if !tx.Amount.Decimal().IsPositive() {
			return invalidTx("amount must be positive")
		}
	case ActionFlareReveal:
		if tx.Commit == "" || tx.Payload == nil || tx.Sender == "" {
			return invalidTx("flare_reveal requires commit, payload, and sender")
		}
	default:
		return invalidTx("unrecognized action %s", tx.Action)
	}
	return nil
}

// Add inserts tx if not already present (deduplicated by txid). It reports
// whether the transaction was newly added.
func (m *Mempool) Add(tx *Transaction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.txs[tx.TxID]; exists {
		return false
	}
	m.txs[tx.TxID] = tx
	return true
}

// Remove deletes the given txids from the pool (spec §4.7 step 5: "remove
// included and invalidated txids from mempool").
func (m *Mempool) Remove(txids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range txids {
		delete(m.txs, id)
	}
}

// Get returns the transaction for a txid, if present.
func (m *Mempool) Get(txid string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[txid]
	return tx, ok
}

// UserTransactionsSorted returns all non-system, non-flare_reveal
// transactions currently pending, sorted by txid ascending (spec §4.7 step
// 4b's deterministic tiebreak).
func (m *Mempool) UserTransactionsSorted() []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		if tx.IsSystem() || tx.Action == ActionFlareReveal {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxID < out[j].TxID })
	return out
}

// FindReveal returns the pending flare_reveal tx whose commit matches
// commit and whose sender matches producer, if any (spec §4.7 step 4a).
func (m *Mempool) FindReveal(commit, producer string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range m.txs {
		if tx.Action != ActionFlareReveal {
			continue
		}
		if tx.Commit == commit && EqualAddressString(tx.Sender, producer) {
			return tx, true
		}
	}
	return nil, false
}

// All returns a snapshot copy of every pending transaction.
func (m *Mempool) All() []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		out = append(out, tx)
	}
	return out
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
