package core

// C5 (part 3): block validator. Validates a single block N against its
// predecessor P and the materialized balances as of P (spec §4.5).

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
)

// ValidatorSet resolves a producer_id to its Ed25519 public key, and lists
// the validator addresses used by leader election (in any order;
// SelectLeader sorts them).
type ValidatorSet interface {
	Addresses() []string
	PublicKey(address string) (ed25519.PublicKey, bool)
}

// ValidateGenesis implements spec §4.5's genesis-only checks.
func ValidateGenesis(b *Block) error {
	if b.PrevHash != GenesisPrevHash {
		return invalidBlock("genesis prev_hash must be %d zeros", len(GenesisPrevHash))
	}
	if b.Slot != 0 {
		return invalidBlock("genesis slot must be 0")
	}
	if b.Signature != "" {
		return invalidBlock("genesis signature must be absent")
	}
	if b.Protocol == nil {
		return invalidBlock("genesis must carry protocol parameters")
	}
	if b.ProducerID != AddressZero.Hex() {
		return invalidBlock("genesis producer must be the zero address")
	}
	hash, err := b.ComputeHash()
	if err != nil {
		return invalidBlock("recompute hash: %v", err)
	}
	if hash != b.Hash {
		return invalidBlock("hash mismatch")
	}
	return nil
}

// ValidateBlock implements spec §4.5 steps 1-7 for a non-genesis block N
// with predecessor prev. balances must reflect the chain state as of prev
// (i.e. before any of N's transactions are applied); on success it has been
// mutated to reflect N's application, matching apply()'s contract.
func ValidateBlock(b *Block, prev *Block, validators ValidatorSet, balances BalanceState, p *Protocol, attempt int) error {
	// 1. Continuity.
	if b.Index != prev.Index+1 {
		return invalidBlock("index %d does not follow predecessor %d", b.Index, prev.Index)
	}
	if b.PrevHash != prev.Hash {
		return invalidBlock("prev_hash mismatch")
	}
	if b.Slot <= prev.Slot {
		return invalidBlock("slot %d does not advance past predecessor slot %d", b.Slot, prev.Slot)
	}

	// 2. Integrity.
	hash, err := b.ComputeHash()
	if err != nil {
		return invalidBlock("recompute hash: %v", err)
	}
	if hash != b.Hash {
		return invalidBlock("hash mismatch")
	}

	// 3. Leader.
	leader := SelectLeader(validators.Addresses(), prev.Hash, b.Slot, attempt)
	if !EqualAddressString(leader, b.ProducerID) {
		return invalidBlock("producer %s is not the elected leader %s for slot %d", b.ProducerID, leader, b.Slot)
	}

	// 4. Signature.
	pub, ok := validators.PublicKey(b.ProducerID)
	if !ok {
		return invalidBlock("unknown producer %s", b.ProducerID)
	}
	if !VerifyBlockSignature(b, pub) {
		return invalidBlock("signature verification failed")
	}

	// 5. Commit/reveal.
	var reveal *Transaction
	for _, tx := range b.Transactions {
		if tx.Action == ActionFlareReveal {
			if reveal != nil {
				return invalidBlock("more than one flare_reveal tx in block")
			}
			reveal = tx
		}
	}
	if reveal != nil {
		if !EqualAddressString(reveal.Sender, prev.ProducerID) {
			return invalidBlock("reveal sender %s does not match predecessor producer %s", reveal.Sender, prev.ProducerID)
		}
		preimage, err := SortedJSON(reveal.Payload.CommitPreimage())
		if err != nil {
			return invalidBlock("encode reveal commit preimage: %v", err)
		}
		sum := sha256.Sum256(preimage)
		if hex.EncodeToString(sum[:]) != prev.FlareCommit {
			return invalidBlock("reveal commit mismatch")
		}
		if !OracleSignatureValid(reveal.Payload, p.Oracle) {
			return invalidBlock("oracle signature invalid or below threshold")
		}
		if reveal.Payload.Slot != prev.Slot {
			return invalidBlock("reveal payload slot %d does not match predecessor slot %d", reveal.Payload.Slot, prev.Slot)
		}
	}

	// 6. Treasury tx.
	var expectedDelta Amount
	var expectedAction TreasuryAction
	if reveal != nil {
		treasuryBalance := balances.Balance(p.Treasury, p.NativeAsset)
		delta, action, err := ComputeTreasuryDelta(reveal.Payload, treasuryBalance, p)
		if err != nil {
			return invalidBlock("compute treasury delta: %v", err)
		}
		expectedDelta, expectedAction = delta, action
	}
	var systemMintBurn []*Transaction
	for _, tx := range b.Transactions {
		if tx.Action == ActionMint || tx.Action == ActionBurn {
			systemMintBurn = append(systemMintBurn, tx)
		}
	}
	switch {
	case expectedAction == TreasuryNone:
		if len(systemMintBurn) != 0 {
			return invalidBlock("unexpected system mint/burn tx with no treasury delta")
		}
	default:
		if len(systemMintBurn) != 1 {
			return invalidBlock("expected exactly one system %s tx", expectedAction)
		}
		tx := systemMintBurn[0]
		wantAction := ActionMint
		if expectedAction == TreasuryBurn {
			wantAction = ActionBurn
		}
		if tx.Action != wantAction {
			return invalidBlock("system tx action %s does not match expected %s", tx.Action, wantAction)
		}
		if tx.Amount.Cmp(expectedDelta) != 0 {
			return invalidBlock("system tx amount %s does not match expected delta %s", tx.Amount, expectedDelta)
		}
	}

	// 7. Per-tx validate/apply in order.
	for _, tx := range b.Transactions {
		if err := Validate(tx, balances, p, tx.IsSystem()); err != nil {
			return err
		}
		if err := Apply(balances, tx, p, tx.IsSystem()); err != nil {
			return invalidBlock("apply tx %s: %v", tx.TxID, err)
		}
		if !tx.IsSystem() {
			balances.BumpNonce(tx.Meta.Sender)
		}
	}
	return nil
}
