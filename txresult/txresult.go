// Package txresult holds the result/reason vocabulary shared between
// rtxp (the publisher) and mtm (the mempool monitor), so neither
// package needs to import the other to talk about outcomes. Spec.md §3
// data model: TxResult (MTM -> RTxP) and TxRejectedReason.
package txresult

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainforge/rtxp/chainclient"
)

// TxRejectedReason is the design-level rejection taxonomy of spec.md §3.
type TxRejectedReason int

const (
	ReasonConflictingTxUnconfirmed TxRejectedReason = iota
	ReasonConflictingTxConfirmed
	ReasonWalletInputGone
	ReasonUnknownTxFailure
	ReasonTxSkippedRetryNextBlock
	ReasonPreconditionsFailed
	ReasonFundingFailed
)

func (r TxRejectedReason) String() string {
	switch r {
	case ReasonConflictingTxUnconfirmed:
		return "ConflictingTxUnconfirmed"
	case ReasonConflictingTxConfirmed:
		return "ConflictingTxConfirmed"
	case ReasonWalletInputGone:
		return "WalletInputGone"
	case ReasonUnknownTxFailure:
		return "UnknownTxFailure"
	case ReasonTxSkippedRetryNextBlock:
		return "TxSkipped"
	case ReasonPreconditionsFailed:
		return "PreconditionsFailed"
	case ReasonFundingFailed:
		return "FundingFailed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether reason ends the owning entity (vs. a
// transient, retry-next-block signal). Per spec.md §4.1.
func (r TxRejectedReason) Terminal() bool {
	return r != ReasonTxSkippedRetryNextBlock
}

// Kind tags which variant of TxResult is populated. DeeplyBuried is the
// terminal "confirmed" signal: once a transaction reaches min_depth,
// MTM emits DeeplyBuried and stops (spec.md §4.1: "TxDeeplyBuried ->
// report TxConfirmed" is RTxP's translation of this terminal signal).
type Kind int

const (
	KindInMempool Kind = iota
	KindRecentlyConfirmed
	KindDeeplyBuried
	KindRejected
)

// TxResult is the sum type MTM reports to RTxP: intermediate signals
// (InMempool, RecentlyConfirmed) plus the two terminal variants
// (DeeplyBuried, Rejected). Spec.md §3.
type TxResult struct {
	Kind Kind
	TxID chainhash.Hash

	// KindInMempool
	BlockHeight chainclient.BlockHeight

	// KindRecentlyConfirmed
	Confirmations uint32

	// KindDeeplyBuried
	Tx *wire.MsgTx

	// KindRejected
	Reason TxRejectedReason
}

func InMempool(txid chainhash.Hash, height chainclient.BlockHeight) TxResult {
	return TxResult{Kind: KindInMempool, TxID: txid, BlockHeight: height}
}

func RecentlyConfirmed(txid chainhash.Hash, confs uint32) TxResult {
	return TxResult{Kind: KindRecentlyConfirmed, TxID: txid, Confirmations: confs}
}

func DeeplyBuried(txid chainhash.Hash, tx *wire.MsgTx) TxResult {
	return TxResult{Kind: KindDeeplyBuried, TxID: txid, Tx: tx}
}

func Rejected(txid chainhash.Hash, reason TxRejectedReason) TxResult {
	return TxResult{Kind: KindRejected, TxID: txid, Reason: reason}
}

func (r TxResult) IsTerminal() bool {
	return r.Kind == KindDeeplyBuried || r.Kind == KindRejected
}
