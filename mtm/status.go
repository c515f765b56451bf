package mtm

import (
	"strings"
)

// ErrorClass is the outcome of classifying a publish_transaction RPC
// error, isolated into this one function per design note §9
// ("Substring-matched RPC error codes... isolate into a single
// classify_publish_error(msg) -> ErrorClass function").
type ErrorClass int

const (
	// ErrClassRejectingReplacement: the node's mempool policy rejected
	// our replacement outright (its replacement didn't satisfy BIP-125).
	ErrClassRejectingReplacement ErrorClass = iota

	// ErrClassInputsMissingOrSpent: an input is already spent or
	// unknown; requires the input-status probe to disambiguate.
	ErrClassInputsMissingOrSpent

	// ErrClassUnknown: any other publish failure.
	ErrClassUnknown
)

const (
	substrRejectingReplacement = "rejecting replacement"
	substrInputsMissingOrSpent = "bad-txns-inputs-missingorspent"
)

// ClassifyPublishError maps a Bitcoin-Core-style human-readable RPC
// error message to an ErrorClass, per spec.md §4.2 step 1 and §6. This
// substring coupling is fragile but required for compatibility with
// Bitcoin Core's error strings, hence kept in this one place.
func ClassifyPublishError(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, substrRejectingReplacement):
		return ErrClassRejectingReplacement
	case strings.Contains(msg, substrInputsMissingOrSpent):
		return ErrClassInputsMissingOrSpent
	default:
		return ErrClassUnknown
	}
}

// InputStatus is the result of check_input_status (spec.md §4.2 step 3):
// a mapping from three raw RPC observations to the two boolean flags
// that determine the terminal rejection reason.
type InputStatus struct {
	SpentConfirmed   bool
	SpentUnconfirmed bool
}

// ParentConfs models get_tx_confirmations(outpoint.txid)'s three-way
// result: unknown (nil), known-unconfirmed (zero), known-confirmed (N).
type ParentConfs struct {
	Known bool
	Confs uint32
}

// DeriveInputStatus implements spec.md §4.2's truth table mapping
// (parent_confirmations, spendable_excl, spendable_incl) to
// (spent_confirmed, spent_unconfirmed):
//
//	parent confs | spent_confirmed   | spent_unconfirmed
//	Some(0)      | false             | !spendable_incl
//	Some(>=1)    | !spendable_excl   | spendable_excl && !spendable_incl
//	None         | false             | false
func DeriveInputStatus(parent ParentConfs, spendableExcl, spendableIncl bool) InputStatus {
	if !parent.Known {
		return InputStatus{}
	}
	if parent.Confs == 0 {
		return InputStatus{SpentUnconfirmed: !spendableIncl}
	}
	return InputStatus{
		SpentConfirmed:   !spendableExcl,
		SpentUnconfirmed: spendableExcl && !spendableIncl,
	}
}

// TerminalReason interprets an InputStatus per spec.md §4.2:
// spent_confirmed -> ConflictingTxConfirmed, spent_unconfirmed ->
// ConflictingTxUnconfirmed, neither -> WalletInputGone.
func (s InputStatus) TerminalReason() TxRejectedReason {
	switch {
	case s.SpentConfirmed:
		return ReasonConflictingTxConfirmed
	case s.SpentUnconfirmed:
		return ReasonConflictingTxUnconfirmed
	default:
		return ReasonWalletInputGone
	}
}
