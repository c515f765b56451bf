// Package rtxp implements the Replaceable Transaction Publisher: a
// per-transaction state machine that drives a pre-signed,
// fee-bumpable on-chain transaction from "about to be broadcast" to
// either "deeply confirmed" or "definitively rejected". See spec.md §4.1.
package rtxp

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainforge/rtxp/chainclient"
	"github.com/chainforge/rtxp/txresult"
)

// Feerate and BlockHeight are re-exported for callers that only import rtxp.
type (
	Feerate     = chainclient.Feerate
	BlockHeight = chainclient.BlockHeight
	Outpoint    = chainclient.Outpoint
)

// WitnessKind tags the witness-construction variant the funder needs,
// per spec.md §3.
type WitnessKind int

const (
	WitnessLocalAnchor WitnessKind = iota
	WitnessRemoteAnchor
	WitnessHtlcSuccess
	WitnessHtlcTimeout
	WitnessClaimHtlc
)

func (k WitnessKind) String() string {
	switch k {
	case WitnessLocalAnchor:
		return "local-anchor"
	case WitnessRemoteAnchor:
		return "remote-anchor"
	case WitnessHtlcSuccess:
		return "htlc-success"
	case WitnessHtlcTimeout:
		return "htlc-timeout"
	case WitnessClaimHtlc:
		return "claim-htlc"
	default:
		return "unknown"
	}
}

// WitnessData carries the witness-construction info the funder needs to
// finish signing. Params is intentionally opaque here: its shape is a
// funder-internal concern, out of scope per spec.md §1.
type WitnessData struct {
	Kind   WitnessKind
	Params map[string]interface{}
}

// TxInfo is the pre-signed base transaction plus its confirmation deadline.
type TxInfo struct {
	BaseTx        *wire.MsgTx
	ConfirmBefore BlockHeight
}

// LogContext flows into every event/log emitted for one publisher
// instance, per spec.md §3.
type LogContext struct {
	PublishID    string
	ChannelID    *chainhash.Hash
	RemoteNodeID string
	TxDesc       string
}

func (lc LogContext) KV() []interface{} {
	kv := []interface{}{"publish_id", lc.PublishID, "tx_desc", lc.TxDesc}
	if lc.ChannelID != nil {
		kv = append(kv, "channel_id", lc.ChannelID.String())
	}
	if lc.RemoteNodeID != "" {
		kv = append(kv, "remote_node_id", lc.RemoteNodeID)
	}
	return kv
}

// ReplaceableTxCmd is the immutable input to one Publisher instance.
type ReplaceableTxCmd struct {
	InputOutpoint Outpoint
	TxInfo        TxInfo
	Desc          string
	WitnessData   WitnessData
	ChannelID     *chainhash.Hash
	RemoteNodeID  string
}

// FundedTx is the funder's immutable output: a fully signed transaction
// at a known effective feerate and fee.
type FundedTx struct {
	SignedTx *wire.MsgTx
	Fee      btcutil.Amount
	Feerate  Feerate
}

func (f FundedTx) TxID() chainhash.Hash { return f.SignedTx.TxHash() }

// InputOutpoints returns every input of the funded transaction, used by
// cleanup's set-difference computation (spec.md §4.1 Cleanup).
func (f FundedTx) InputOutpoints() []Outpoint {
	ops := make([]Outpoint, 0, len(f.SignedTx.TxIn))
	for _, in := range f.SignedTx.TxIn {
		ops = append(ops, chainclient.FromWire(in.PreviousOutPoint))
	}
	return ops
}

// TxRejectedReason is re-exported from txresult so rtxp callers don't
// need a second import for the taxonomy spec.md §3 treats as one thing.
type TxRejectedReason = txresult.TxRejectedReason

const (
	ReasonConflictingTxUnconfirmed = txresult.ReasonConflictingTxUnconfirmed
	ReasonConflictingTxConfirmed   = txresult.ReasonConflictingTxConfirmed
	ReasonWalletInputGone          = txresult.ReasonWalletInputGone
	ReasonUnknownTxFailure         = txresult.ReasonUnknownTxFailure
	ReasonTxSkippedRetryNextBlock  = txresult.ReasonTxSkippedRetryNextBlock
	ReasonPreconditionsFailed      = txresult.ReasonPreconditionsFailed
	ReasonFundingFailed            = txresult.ReasonFundingFailed
)

// PublishTxResult is the single result delivered to a caller's ReplyTo
// channel, exactly once per Publish (spec.md §4.1, invariant 1).
type PublishTxResult struct {
	PublishID string
	Cmd       ReplaceableTxCmd
	Confirmed *wire.MsgTx // non-nil iff terminal result is TxConfirmed
	Rejected  *TxRejectedReason
}

func (r PublishTxResult) IsConfirmed() bool { return r.Confirmed != nil }
