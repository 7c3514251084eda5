package core

import "crypto/ed25519"

// StaticValidatorSet is the fixed, non-goal-excluded validator set (spec
// §1 Non-goals: "dynamic validator set"): a simple address->pubkey map
// loaded once from the genesis/config boundary and never mutated.
type StaticValidatorSet struct {
	addresses []string
	keys      map[string]ed25519.PublicKey
}

// NewStaticValidatorSet builds a validator set from address->pubkey pairs.
// Order of iteration does not matter; SelectLeader sorts internally.
func NewStaticValidatorSet(keys map[string]ed25519.PublicKey) *StaticValidatorSet {
	addrs := make([]string, 0, len(keys))
	for addr := range keys {
		addrs = append(addrs, addr)
	}
	return &StaticValidatorSet{addresses: addrs, keys: keys}
}

// Addresses implements ValidatorSet.
func (s *StaticValidatorSet) Addresses() []string {
	return append([]string(nil), s.addresses...)
}

// PublicKey implements ValidatorSet.
func (s *StaticValidatorSet) PublicKey(address string) (ed25519.PublicKey, bool) {
	for addr, key := range s.keys {
		if EqualAddressString(addr, address) {
			return key, true
		}
	}
	return nil, false
}
