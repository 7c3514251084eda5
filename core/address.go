package core

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Address is a 20-byte account identifier, externally rendered as a
// lowercase "0x"-prefixed hex string. Two reserved forms exist outside the
// regular 20-byte keyspace: ProtocolAddress ("_protocol", the reward sender)
// and pool pseudo-accounts ("pool:<id>", produced by PoolAddress). Both are
// carried as their string form rather than the fixed-size Address array,
// since they never correspond to a signing key.
type Address [20]byte

// AddressZero is the reserved producer address of the genesis block.
var AddressZero = Address{}

// ProtocolAddress is the synthetic sender of reward transactions.
const ProtocolAddress = "_protocol"

// Hex returns the "0x"-prefixed lowercase hex form of the address.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string { return a.Hex() }

// ParseAddress parses a "0x"-prefixed (case-insensitive) hex address.
func ParseAddress(s string) (Address, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 40 {
		return Address{}, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, false
	}
	var out Address
	copy(out[:], b)
	return out, true
}

// EqualAddressString reports whether two address strings denote the same
// address under the protocol's case-insensitive comparison rule (spec §3).
func EqualAddressString(a, b string) bool {
	return strings.EqualFold(a, b)
}

// PoolAddress returns the synthetic account identifier for an AMM pool,
// "pool:<id>" (spec §3).
func PoolAddress(poolID string) string {
	return "pool:" + poolID
}

// AddressFromEd25519 derives a validator address from an Ed25519 public key:
// "0x" + lower_hex(SHA256(pubkey)[-20:]) (spec §6).
func AddressFromEd25519(pub ed25519.PublicKey) Address {
	sum := sha256.Sum256(pub)
	var out Address
	copy(out[:], sum[len(sum)-20:])
	return out
}

// AddressFromBytes derives an address the same way as AddressFromEd25519 but
// from an arbitrary public-key byte string. Used for ECDSA-derived user
// addresses, where the "public key" bytes are the uncompressed secp256k1
// point (see transaction.go's SignWithPersonalSign/recoverSender) — the
// protocol uses this uniform derivation for every account kind rather than
// Ethereum's native Keccak-based address scheme.
func AddressFromBytes(pub []byte) Address {
	sum := sha256.Sum256(pub)
	var out Address
	copy(out[:], sum[len(sum)-20:])
	return out
}
