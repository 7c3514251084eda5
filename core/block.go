package core

// C5 (part 1): block structure and hashing. The hash preimage is a sorted
// JSON form over a restricted projection of the block, mirroring how
// Transaction has two distinct canonical forms (codec.go).

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// GenesisPrevHash is the fixed 64-zero-character predecessor hash of the
// genesis block.
var GenesisPrevHash = strings.Repeat("0", 64)

// Block is the atomic unit of chain state (spec §3). Protocol is non-nil
// only on the genesis block.
type Block struct {
	Index        uint64         `json:"index"`
	PrevHash     string         `json:"prev_hash"`
	ProducerID   string         `json:"producer_id"`
	Signature    string         `json:"signature,omitempty"`
	Slot         uint64         `json:"slot"`
	Transactions []*Transaction `json:"transactions"`
	FlareCommit  string         `json:"flare_commit,omitempty"`
	Protocol     *Protocol      `json:"protocol,omitempty"`
	Hash         string         `json:"hash"`
}

// HashPreimage returns the sorted-JSON preimage hashed to produce b.Hash
// (spec §4.5 step 2): {index, prev_hash, producer_id, slot, transactions:
// consensus_forms, flare_commit} plus protocol when present.
func (b *Block) HashPreimage() ([]byte, error) {
	consensusForms := make([]interface{}, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		raw, err := ConsensusForm(tx)
		if err != nil {
			return nil, err
		}
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		consensusForms = append(consensusForms, decoded)
	}
	fields := map[string]interface{}{
		"index":        b.Index,
		"prev_hash":    b.PrevHash,
		"producer_id":  b.ProducerID,
		"slot":         b.Slot,
		"transactions": consensusForms,
		"flare_commit": b.FlareCommit,
	}
	if b.Protocol != nil {
		fields["protocol"] = b.Protocol
	}
	return SortedJSON(fields)
}

// ComputeHash returns hex(SHA256(preimage)).
func (b *Block) ComputeHash() (string, error) {
	preimage, err := b.HashPreimage()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(preimage)
	return hex.EncodeToString(sum[:]), nil
}

// SignBlock sets b.Hash and b.Signature: the hash is computed from the
// preimage, then Ed25519-signed over the hash's ASCII hex encoding (spec
// §4.7 step e).
func SignBlock(b *Block, priv ed25519.PrivateKey) error {
	hash, err := b.ComputeHash()
	if err != nil {
		return err
	}
	b.Hash = hash
	sig := ed25519.Sign(priv, []byte(hash))
	b.Signature = hex.EncodeToString(sig)
	return nil
}

// VerifyBlockSignature checks b.Signature against producerPub, the Ed25519
// public key of b.ProducerID (spec §4.5 step 4).
func VerifyBlockSignature(b *Block, producerPub ed25519.PublicKey) bool {
	sigHex := strings.TrimPrefix(b.Signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(producerPub, []byte(b.Hash), sig)
}

// IsGenesis reports whether b is the genesis block by its fixed shape
// rather than relying on caller-supplied index context.
func (b *Block) IsGenesis() bool {
	return b.Index == 0 && b.PrevHash == GenesisPrevHash && b.Slot == 0 && b.Signature == ""
}

// NewGenesisBlock builds the fixed-shape genesis block carrying the
// protocol parameters (spec §3 "Chain").
func NewGenesisBlock(p *Protocol) (*Block, error) {
	b := &Block{
		Index:      0,
		PrevHash:   GenesisPrevHash,
		ProducerID: AddressZero.Hex(),
		Slot:       0,
		Protocol:   p,
	}
	hash, err := b.ComputeHash()
	if err != nil {
		return nil, err
	}
	b.Hash = hash
	return b, nil
}
