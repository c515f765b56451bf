// Package chainclient defines the external collaborators RTxP and MTM
// consume: a Bitcoin-Core-like blockchain client, a fee estimator and a
// block-height source. This package never decides policy; it only
// speaks RPC. See spec.md §6.
package chainclient

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Outpoint mirrors wire.OutPoint with a stable, comparable value the
// rest of the module can use as a map key without pulling in wire
// everywhere.
type Outpoint struct {
	TxID chainhash.Hash
	Vout uint32
}

func (o Outpoint) String() string { return o.TxID.String() + ":" + itoa(o.Vout) }

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := [10]byte{}
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}

func FromWire(op wire.OutPoint) Outpoint { return Outpoint{TxID: op.Hash, Vout: op.Index} }

func (o Outpoint) ToWire() wire.OutPoint { return wire.OutPoint{Hash: o.TxID, Index: o.Vout} }

// Feerate is expressed in sat/kw (sats per kilo-weight-unit), matching
// Bitcoin Core's internal fee-estimator unit (spec.md glossary).
type Feerate int64

// BlockHeight is an absolute chain height.
type BlockHeight uint32

// BlockchainClient is the RPC surface this module consumes. A concrete
// implementation (BitcoindClient) talks to a Bitcoin-Core-compatible
// node; tests substitute a mock.
type BlockchainClient interface {
	// PublishTransaction broadcasts tx. The returned error, if any,
	// carries a human-readable message; callers classify it with
	// mtm.ClassifyPublishError.
	PublishTransaction(ctx context.Context, tx *wire.MsgTx) error

	// GetTxConfirmations returns nil if txid is unknown to the node
	// (neither mempool nor chain), 0 if it is known but unconfirmed, or
	// the confirmation count otherwise.
	GetTxConfirmations(ctx context.Context, txid chainhash.Hash) (*uint32, error)

	// IsOutputSpendable reports whether op is still an unspent,
	// spendable output. includeMempool widens the check to outputs only
	// spent by an unconfirmed transaction.
	IsOutputSpendable(ctx context.Context, op Outpoint, includeMempool bool) (bool, error)

	// AbandonTransaction asks the wallet to forget txid. It is a no-op
	// if txid is mined or still broadcastable; failures are ignored by
	// callers per spec.md §4.1.
	AbandonTransaction(ctx context.Context, txid chainhash.Hash) error

	// UnlockOutpoints releases wallet locks previously taken by
	// FundTransaction (an external, out-of-scope funder operation) on
	// ops. Called with an empty slice is a no-op.
	UnlockOutpoints(ctx context.Context, ops []Outpoint) error
}

// FeeEstimator is consumed to translate a confirmation-target block
// count into a feerate.
type FeeEstimator interface {
	GetFeeratePerKW(ctx context.Context, blockTarget uint16) (Feerate, error)
}

// BlockHeightSource streams new block heights as they're learned.
// Subscribe returns a channel of heights and a cancel func.
type BlockHeightSource interface {
	Subscribe() (<-chan BlockHeight, func())
}
