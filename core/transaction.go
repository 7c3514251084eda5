package core

// C3: transaction engine. Validation is pure; Apply mutates the supplied
// BalanceState. Grounded on the teacher's core/transactions.go, which signs
// and recovers over go-ethereum's secp256k1 ECDSA — here specialised to the
// "personal_sign" prefixed message the spec requires for user transactions
// (validator/oracle signatures use Ed25519 instead; see block.go/oracle.go).

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Action tags the variant of a Transaction (spec §3).
type Action string

const (
	ActionTransfer     Action = "transfer"
	ActionMint         Action = "mint"
	ActionBurn         Action = "burn"
	ActionMintBridge   Action = "mint_bridge"
	ActionAddLiquidity Action = "add_liquidity"
	ActionReward       Action = "reward"
	ActionFlareReveal  Action = "flare_reveal"
)

// TxMeta is mempool-only bookkeeping, stripped from all canonical forms
// (spec §3, §4.1).
type TxMeta struct {
	Sender     string    `json:"sender"`
	Signature  string    `json:"signature"`
	ReceivedAt time.Time `json:"received_at"`
}

// FeeAmounts is the `_fee` breakdown computed at inclusion time for
// transfers (spec §4.3).
type FeeAmounts struct {
	Total     Amount `json:"total"`
	Devs      Amount `json:"devs"`
	Orbital   Amount `json:"orbital"`
	Validator Amount `json:"validator"`
}

// Transaction is the tagged-variant transaction record (spec §3).
type Transaction struct {
	TxID    string  `json:"txid,omitempty"`
	Action  Action  `json:"action"`
	Asset   string  `json:"asset,omitempty"`
	Amount  Amount  `json:"amount,omitempty"`
	To      string  `json:"to,omitempty"`
	Nonce   *uint64 `json:"nonce,omitempty"`
	ChainID string  `json:"chainId"`

	// add_liquidity only
	PoolID       string `json:"pool_id,omitempty"`
	AssetPaired  string `json:"asset_paired,omitempty"`
	AmountPaired Amount `json:"amount_paired,omitempty"`

	// flare_reveal only
	Commit  string        `json:"commit,omitempty"`
	Payload *FlarePayload `json:"payload,omitempty"`
	Sender  string        `json:"sender,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`

	Meta *TxMeta     `json:"_meta,omitempty"`
	Fee  *FeeAmounts `json:"_fee,omitempty"`
}

// IsSystem reports whether tx is one of the three system-only actions
// (spec §3 table).
func (tx *Transaction) IsSystem() bool {
	switch tx.Action {
	case ActionMint, ActionBurn, ActionReward:
		return true
	}
	return false
}

// BalanceView is the read-only surface the transaction engine needs to
// validate a transaction (spec §3: balances keyed by "<address>:<asset>",
// nonces sender-scoped).
type BalanceView interface {
	Balance(owner, asset string) Amount
	NonceOf(sender string) uint64
}

// BalanceState additionally allows Apply to mutate balances and nonces.
type BalanceState interface {
	BalanceView
	Credit(owner, asset string, amount Amount)
	Debit(owner, asset string, amount Amount)
	BumpNonce(sender string)
}

// SignWithPersonalSign signs tx's signing form with the Ethereum
// personal_sign prefix using an ECDSA secp256k1 key, and populates
// tx.Meta accordingly. It is a convenience for tests and the wallet-facing
// boundary; production wallets perform the equivalent off-chain.
func SignWithPersonalSign(tx *Transaction, priv []byte) error {
	form, err := SigningForm(tx)
	if err != nil {
		return err
	}
	key, err := crypto.ToECDSA(priv)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	hash := crypto.Keccak256(personalSignMessage(form))
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	addr := AddressFromBytes(crypto.FromECDSAPub(&key.PublicKey))
	tx.Meta = &TxMeta{
		Sender:     addr.Hex(),
		Signature:  "0x" + hex.EncodeToString(sig),
		ReceivedAt: time.Now().UTC(),
	}
	txid, err := ComputeTxID(tx)
	if err != nil {
		return err
	}
	tx.TxID = txid
	return nil
}

// recoverSender recovers the Ethereum address that produced tx.Meta.Signature
// over tx's personal_sign-prefixed signing form (spec §4.3 step 3), and
// checks it matches tx.Meta.Sender case-insensitively.
func recoverSender(tx *Transaction) (string, error) {
	if tx.Meta == nil || tx.Meta.Signature == "" {
		return "", invalidTx("missing signature")
	}
	form, err := SigningForm(tx)
	if err != nil {
		return "", invalidTx("encode signing form: %v", err)
	}
	sigHex := strings.TrimPrefix(tx.Meta.Signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != 65 {
		return "", invalidTx("malformed signature")
	}
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	hash := crypto.Keccak256(personalSignMessage(form))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", invalidTx("signature recovery failed: %v", err)
	}
	recovered := AddressFromBytes(crypto.FromECDSAPub(pub)).Hex()
	if !EqualAddressString(recovered, tx.Meta.Sender) {
		return "", invalidTx("recovered sender %s does not match claimed sender %s", recovered, tx.Meta.Sender)
	}
	return recovered, nil
}

// Validate implements spec §4.3's validation order. system must be true iff
// tx.IsSystem().
func Validate(tx *Transaction, balances BalanceView, p *Protocol, system bool) error {
	if tx.Action == "" {
		return invalidTx("missing action")
	}
	if tx.ChainID != p.ChainID {
		return invalidTx("chain id mismatch: got %s want %s", tx.ChainID, p.ChainID)
	}
	if system != tx.IsSystem() {
		return invalidTx("system flag mismatch for action %s", tx.Action)
	}

	if tx.Action != ActionFlareReveal {
		if tx.Asset == "" {
			return invalidTx("missing asset")
		}
		if !tx.Amount.Decimal().IsPositive() {
			return invalidTx("amount must be positive")
		}
		if tx.Amount.FractionalDigits() > MinorDigits {
			return invalidTx("amount exceeds %d fractional digits", MinorDigits)
		}
	}

	var sender string
	if !system {
		recovered, err := recoverSender(tx)
		if err != nil {
			return err
		}
		sender = recovered
		if tx.Action != ActionFlareReveal {
			expected := balances.NonceOf(sender)
			if tx.Nonce == nil {
				return invalidTx("missing nonce")
			}
			if *tx.Nonce != expected {
				return invalidTx("nonce mismatch: got %d want %d", *tx.Nonce, expected)
			}
		}
	}

	switch tx.Action {
	case ActionTransfer:
		return validateTransfer(tx, sender, balances, p)
	case ActionMintBridge:
		return validateMintBridge(tx, sender, p)
	case ActionMint:
		return validateMint(tx, p)
	case ActionBurn:
		return validateBurn(tx, p)
	case ActionAddLiquidity:
		return validateAddLiquidity(tx, sender, balances)
	case ActionReward:
		return validateReward(tx)
	case ActionFlareReveal:
		return validateFlareReveal(tx, sender)
	default:
		return invalidTx("unknown action %s", tx.Action)
	}
}

func validateTransfer(tx *Transaction, sender string, balances BalanceView, p *Protocol) error {
	if tx.To == "" {
		return invalidTx("missing recipient")
	}
	if !p.IsAllowedAsset(tx.Asset) {
		return invalidTx("asset %s not allowed", tx.Asset)
	}
	fee := ComputeFee(tx.Amount, p)
	if tx.Asset == p.NativeAsset {
		need := tx.Amount.Add(fee.Total)
		if balances.Balance(sender, p.NativeAsset).LessThan(need) {
			return invalidTx("insufficient native balance")
		}
	} else {
		if balances.Balance(sender, tx.Asset).LessThan(tx.Amount) {
			return invalidTx("insufficient asset balance")
		}
		if balances.Balance(sender, p.NativeAsset).LessThan(fee.Total) {
			return invalidTx("insufficient native balance for fee")
		}
	}
	return nil
}

func validateMintBridge(tx *Transaction, sender string, p *Protocol) error {
	if !EqualAddressString(sender, p.BridgeIssuer) {
		return invalidTx("unauthorized bridge mint issuer")
	}
	if tx.To == "" {
		return invalidTx("missing recipient")
	}
	if !p.IsAllowedAsset(tx.Asset) {
		return invalidTx("asset %s not allowed", tx.Asset)
	}
	if tx.Asset == p.NativeAsset {
		return invalidTx("mint_bridge asset must not be native")
	}
	return nil
}

func validateMint(tx *Transaction, p *Protocol) error {
	if tx.Asset != p.NativeAsset {
		return invalidTx("mint asset must be native")
	}
	if !EqualAddressString(tx.To, p.Treasury) {
		return invalidTx("mint recipient must be treasury")
	}
	return nil
}

func validateBurn(tx *Transaction, p *Protocol) error {
	if tx.Asset != p.NativeAsset {
		return invalidTx("burn asset must be native")
	}
	return nil
}

func validateAddLiquidity(tx *Transaction, sender string, balances BalanceView) error {
	if tx.Asset == "" || tx.AssetPaired == "" {
		return invalidTx("missing pool asset pair")
	}
	if !tx.AmountPaired.Decimal().IsPositive() {
		return invalidTx("paired amount must be positive")
	}
	if balances.Balance(sender, tx.Asset).LessThan(tx.Amount) {
		return invalidTx("insufficient balance for asset %s", tx.Asset)
	}
	if balances.Balance(sender, tx.AssetPaired).LessThan(tx.AmountPaired) {
		return invalidTx("insufficient balance for paired asset %s", tx.AssetPaired)
	}
	return nil
}

func validateReward(tx *Transaction) error {
	if tx.To == "" {
		return invalidTx("missing recipient")
	}
	return nil
}

func validateFlareReveal(tx *Transaction, sender string) error {
	if tx.Commit == "" || tx.Payload == nil {
		return invalidTx("missing commit or payload")
	}
	if tx.Sender == "" {
		return invalidTx("missing sender")
	}
	if !EqualAddressString(tx.Sender, sender) {
		return invalidTx("declared sender does not match recovered signer")
	}
	return nil
}

// ComputeFee implements spec §4.3's fee function. Always computed in the
// native asset, regardless of tx.Asset.
func ComputeFee(amount Amount, p *Protocol) FeeAmounts {
	total := amount.MulRatio(p.TransferFeePercent)
	devs := total.MulRatio(p.FeeDistribution.Devs)
	orbital := total.MulRatio(p.FeeDistribution.Orbital)
	validator := total.Sub(devs).Sub(orbital)
	return FeeAmounts{Total: total, Devs: devs, Orbital: orbital, Validator: validator}
}

// Apply mutates balances according to tx's action (spec §4.3 "Application
// semantics"). The caller must have already called Validate successfully.
// For a non-system transfer, system is false and the fee is computed,
// recorded on tx.Fee and debited from the sender; the validator reward itself
// arrives as a separate `reward` system transaction in the same block.
func Apply(balances BalanceState, tx *Transaction, p *Protocol, system bool) error {
	switch tx.Action {
	case ActionTransfer:
		sender := tx.Meta.Sender
		balances.Debit(sender, tx.Asset, tx.Amount)
		balances.Credit(tx.To, tx.Asset, tx.Amount)
		if !system {
			fee := ComputeFee(tx.Amount, p)
			tx.Fee = &fee
			balances.Debit(sender, p.NativeAsset, fee.Total)
		}
	case ActionMintBridge:
		balances.Credit(tx.To, tx.Asset, tx.Amount)
	case ActionMint:
		balances.Credit(tx.To, tx.Asset, tx.Amount)
	case ActionBurn:
		balances.Debit(p.Treasury, tx.Asset, tx.Amount)
	case ActionReward:
		balances.Credit(tx.To, tx.Asset, tx.Amount)
	case ActionAddLiquidity:
		sender := tx.Meta.Sender
		balances.Debit(sender, tx.Asset, tx.Amount)
		balances.Debit(sender, tx.AssetPaired, tx.AmountPaired)
		pool := PoolAddress(tx.PoolID)
		balances.Credit(pool, tx.Asset, tx.Amount)
		balances.Credit(pool, tx.AssetPaired, tx.AmountPaired)
	case ActionFlareReveal:
		// non-economic: no balance effects.
	default:
		return fmt.Errorf("apply: unknown action %s", tx.Action)
	}
	return nil
}
