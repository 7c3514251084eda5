package core

import "github.com/shopspring/decimal"

// FeeDistribution is the ratio split of transfer fees (spec §3, §4.3).
type FeeDistribution struct {
	Devs      decimal.Decimal `json:"devs"`
	Orbital   decimal.Decimal `json:"orbital"`
	Validator decimal.Decimal `json:"validator"`
}

// OracleConfig lists the flare oracle's authorized signer set and the
// multi-signature threshold required to accept an observation (spec §6).
type OracleConfig struct {
	PubKeys   []string `json:"pubkeys"` // hex-encoded Ed25519 public keys
	Threshold int      `json:"threshold"`
}

// Protocol is the immutable parameter set embedded in the genesis block
// (spec §3, §6). Once loaded it never changes for the lifetime of a chain.
type Protocol struct {
	Treasury           string          `json:"treasury"`
	Devs               string          `json:"devs"`
	Orbital            string          `json:"orbital"`
	BridgeIssuer       string          `json:"bridge_issuer"`
	Version            string          `json:"version"`
	ChainID            string          `json:"chain_id"`
	SoftCap            decimal.Decimal `json:"soft_cap"`
	MintScale          decimal.Decimal `json:"mint_scale"`
	FluxScale          decimal.Decimal `json:"flux_scale"`
	FluxNormalizer     decimal.Decimal `json:"flux_normalizer"`
	GeomagScale        decimal.Decimal `json:"geomag_scale"`
	TransferFeePercent decimal.Decimal `json:"transfer_fee_percent"`
	FeeDistribution    FeeDistribution `json:"fee_distribution"`
	AllowedAssets      []string        `json:"allowed_assets"`
	NativeAsset        string          `json:"native_asset"`
	MinStake           decimal.Decimal `json:"min_stake"`
	SlotDurationMillis int64           `json:"slot_duration_ms"`
	Oracle             OracleConfig    `json:"oracle"`
}

// IsAllowedAsset reports whether asset is in the protocol's allowed set.
func (p *Protocol) IsAllowedAsset(asset string) bool {
	for _, a := range p.AllowedAssets {
		if a == asset {
			return true
		}
	}
	return false
}
