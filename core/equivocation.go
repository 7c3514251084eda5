package core

// Equivocation registry (spec §4.8): a set keyed by (producer_id, slot) to
// the hash first observed for that key. A second, different hash for the
// same key is rejected and logged; entries older than 1000 slots behind
// the current tip are pruned.

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

const equivocationPruneWindow = 1000

type equivocationKey struct {
	producer string
	slot     uint64
}

// EquivocationRegistry detects a producer signing two distinct blocks for
// the same slot.
type EquivocationRegistry struct {
	mu      sync.Mutex
	seen    map[equivocationKey]string
	bySlot  map[uint64][]equivocationKey
	log     *logrus.Entry
}

// NewEquivocationRegistry returns an empty registry.
func NewEquivocationRegistry(log *logrus.Entry) *EquivocationRegistry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &EquivocationRegistry{
		seen:   make(map[equivocationKey]string),
		bySlot: make(map[uint64][]equivocationKey),
		log:    log.WithField("component", "equivocation"),
	}
}

// Check registers (producer, slot) -> hash if unseen, or verifies the hash
// matches if already seen. It returns an *EquivocationError when a second,
// different hash is observed for the same producer/slot.
func (r *EquivocationRegistry) Check(producer string, slot uint64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := equivocationKey{producer: producer, slot: slot}
	if existing, ok := r.seen[key]; ok {
		if existing != hash {
			r.log.WithFields(logrus.Fields{
				"producer": producer,
				"slot":     slot,
				"hash":     hash,
				"existing": existing,
			}).Warn("DOUBLE_SIGN")
			return &EquivocationError{Producer: producer, Slot: slot}
		}
		return nil
	}
	r.seen[key] = hash
	r.bySlot[slot] = append(r.bySlot[slot], key)
	return nil
}

// Prune removes entries for slots older than 1000 behind tipSlot.
func (r *EquivocationRegistry) Prune(tipSlot uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tipSlot < equivocationPruneWindow {
		return
	}
	cutoff := tipSlot - equivocationPruneWindow
	for slot, keys := range r.bySlot {
		if slot >= cutoff {
			continue
		}
		for _, k := range keys {
			delete(r.seen, k)
		}
		delete(r.bySlot, slot)
	}
}

// String aids debugging/logging of a key.
func (k equivocationKey) String() string {
	return fmt.Sprintf("%s@%d", k.producer, k.slot)
}
