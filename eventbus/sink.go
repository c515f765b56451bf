// Package eventbus models the "abstract EventSink capability injected
// at construction, not a process-wide singleton" of spec.md §9. MTM
// publishes TransactionPublished and TransactionConfirmed records
// through it; external auditors/metrics consume them (spec.md §6).
package eventbus

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TransactionPublishedEvent is emitted exactly once per publisher
// attempt, on the first successful broadcast (spec.md §4.2).
type TransactionPublishedEvent struct {
	ChannelID    *chainhash.Hash
	RemoteNodeID string
	Tx           *wire.MsgTx
	Fee          btcutil.Amount
	Desc         string
}

// TransactionConfirmedEvent is emitted exactly once per publisher
// attempt, when the transaction reaches min_depth (spec.md §4.2).
type TransactionConfirmedEvent struct {
	ChannelID    *chainhash.Hash
	RemoteNodeID string
	Tx           *wire.MsgTx
}

// EventSink is the capability RTxP/MTM are constructed with; it is
// never looked up as a process-wide singleton (design note §9).
type EventSink interface {
	TransactionPublished(ctx context.Context, e TransactionPublishedEvent) error
	TransactionConfirmed(ctx context.Context, e TransactionConfirmedEvent) error
}

// MultiSink fans a single event out to every sink in order, returning
// the first error encountered (but still attempting every sink).
type MultiSink []EventSink

func (m MultiSink) TransactionPublished(ctx context.Context, e TransactionPublishedEvent) error {
	var first error
	for _, s := range m {
		if err := s.TransactionPublished(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) TransactionConfirmed(ctx context.Context, e TransactionConfirmedEvent) error {
	var first error
	for _, s := range m {
		if err := s.TransactionConfirmed(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NopSink discards every event; useful as a safe default in tests.
type NopSink struct{}

func (NopSink) TransactionPublished(context.Context, TransactionPublishedEvent) error { return nil }
func (NopSink) TransactionConfirmed(context.Context, TransactionConfirmedEvent) error { return nil }
