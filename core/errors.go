package core

import "fmt"

// InvalidTxError is spec §7's InvalidTx{reason} variant: a validation
// failure. The transaction is dropped from the mempool and not propagated
// further; the error is never sent to peers.
type InvalidTxError struct {
	Reason string
}

func (e *InvalidTxError) Error() string { return "invalid tx: " + e.Reason }

func invalidTx(format string, args ...interface{}) error {
	return &InvalidTxError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidBlockError is spec §7's InvalidBlock{reason} variant.
type InvalidBlockError struct {
	Reason string
}

func (e *InvalidBlockError) Error() string { return "invalid block: " + e.Reason }

func invalidBlock(format string, args ...interface{}) error {
	return &InvalidBlockError{Reason: fmt.Sprintf(format, args...)}
}

// EquivocationError is spec §7's Equivocation{producer, slot} variant.
type EquivocationError struct {
	Producer string
	Slot     uint64
}

func (e *EquivocationError) Error() string {
	return fmt.Sprintf("equivocation: producer %s at slot %d", e.Producer, e.Slot)
}

// OracleUnavailableError is spec §7's OracleUnavailable variant: the
// producer skips the slot rather than producing a block.
type OracleUnavailableError struct {
	Reason string
}

func (e *OracleUnavailableError) Error() string { return "oracle unavailable: " + e.Reason }
