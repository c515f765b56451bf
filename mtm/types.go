// Package mtm implements the Mempool Transaction Monitor: publishes one
// signed transaction and reports a stream of status updates
// (InMempool, RecentlyConfirmed, DeeplyBuried, Rejected), terminating
// after exactly one terminal result. See spec.md §4.2.
package mtm

import "github.com/chainforge/rtxp/txresult"

type (
	TxResult        = txresult.TxResult
	TxRejectedReason = txresult.TxRejectedReason
)

const (
	KindInMempool         = txresult.KindInMempool
	KindRecentlyConfirmed = txresult.KindRecentlyConfirmed
	KindDeeplyBuried      = txresult.KindDeeplyBuried
	KindRejected          = txresult.KindRejected
)

const (
	ReasonConflictingTxUnconfirmed = txresult.ReasonConflictingTxUnconfirmed
	ReasonConflictingTxConfirmed   = txresult.ReasonConflictingTxConfirmed
	ReasonWalletInputGone          = txresult.ReasonWalletInputGone
	ReasonUnknownTxFailure         = txresult.ReasonUnknownTxFailure
	ReasonTxSkippedRetryNextBlock  = txresult.ReasonTxSkippedRetryNextBlock
)
