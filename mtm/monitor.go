package mtm

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainforge/rtxp/chainclient"
	"github.com/chainforge/rtxp/eventbus"
	"github.com/chainforge/rtxp/internal/logx"
	"github.com/chainforge/rtxp/txresult"
)

var logger = logx.RootMTM

// PublishMeta carries the fields the monitor needs only to build the
// TransactionPublished/TransactionConfirmed events, kept separate from
// the RPC-facing tx/input arguments so Publish's signature matches
// spec.md §4.2 exactly.
type PublishMeta struct {
	ChannelID    *chainhash.Hash
	RemoteNodeID string
	Desc         string
	Fee          btcutil.Amount
}

// Monitor is the per-broadcast-attempt actor of spec.md §4.2. One
// Monitor owns exactly one signed transaction; construct a new Monitor
// for every fresh broadcast attempt (including each RBF bump), matching
// spec.md §2 ("Each fresh broadcast attempt owns one MTM").
type Monitor struct {
	chain  chainclient.BlockchainClient
	blocks chainclient.BlockHeightSource
	sink   eventbus.EventSink

	minDepth uint32

	started int32
	stopped int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor constructs a Monitor bound to a blockchain client, a block
// height source and an event sink. minDepth is the confirmation count
// after which a transaction is considered deeply buried.
func NewMonitor(chain chainclient.BlockchainClient, blocks chainclient.BlockHeightSource, sink eventbus.EventSink, minDepth uint32) *Monitor {
	return &Monitor{
		chain:    chain,
		blocks:   blocks,
		sink:     sink,
		minDepth: minDepth,
		quit:     make(chan struct{}),
	}
}

// Publish broadcasts tx and returns a channel of TxResult updates.
// Exactly one terminal result (DeeplyBuried or Rejected) is ever sent,
// and the channel is closed immediately after, per spec.md §4.2.
func (m *Monitor) Publish(ctx context.Context, tx *wire.MsgTx, input chainclient.Outpoint, meta PublishMeta) <-chan TxResult {
	if !atomic.CompareAndSwapInt32(&m.started, 0, 1) {
		panic("mtm: Publish called twice on the same Monitor")
	}

	out := make(chan TxResult, 8)
	txid := tx.TxHash()
	log := logger.NewWith("txid", txid, "desc", meta.Desc)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(out)

		if terminal, done := m.publishOnce(ctx, tx, txid, input, meta, log, out); done {
			_ = terminal
			return
		}

		m.waitForConfirmation(ctx, tx, txid, input, meta, log, out)
	}()

	return out
}

// publishOnce implements spec.md §4.2 step 1. Returns done=true if a
// terminal result was already emitted (no need to enter WaitForConfirmation).
func (m *Monitor) publishOnce(ctx context.Context, tx *wire.MsgTx, txid chainhash.Hash, input chainclient.Outpoint, meta PublishMeta, log *logx.Logger, out chan<- TxResult) (TxResult, bool) {
	err := m.chain.PublishTransaction(ctx, tx)
	if err == nil {
		log.Info("transaction published")
		if pubErr := m.sink.TransactionPublished(ctx, eventbus.TransactionPublishedEvent{
			ChannelID:    meta.ChannelID,
			RemoteNodeID: meta.RemoteNodeID,
			Tx:           tx,
			Desc:         meta.Desc,
			Fee:          meta.Fee,
		}); pubErr != nil {
			log.Warn("failed to emit TransactionPublished event", "err", pubErr)
		}
		return TxResult{}, false
	}

	switch ClassifyPublishError(err) {
	case ErrClassRejectingReplacement:
		log.Info("publish rejected as a replacement", "err", err)
		r := txresult.Rejected(txid, ReasonConflictingTxUnconfirmed)
		m.emit(out, r)
		return r, true

	case ErrClassInputsMissingOrSpent:
		log.Warn("publish failed: inputs missing or spent, probing", "err", err)
		if reason := m.probeInputStatus(ctx, input); reason != nil {
			r := txresult.Rejected(txid, *reason)
			m.emit(out, r)
			return r, true
		}
		log.Debug("input status probe inconclusive, will retry with block arrivals")
		return TxResult{}, false

	default:
		log.Error("publish failed", "err", err)
		r := txresult.Rejected(txid, ReasonUnknownTxFailure)
		m.emit(out, r)
		return r, true
	}
}

// waitForConfirmation implements spec.md §4.2 step 2: subscribe to
// block-count events and poll get_tx_confirmations on each one.
func (m *Monitor) waitForConfirmation(ctx context.Context, tx *wire.MsgTx, txid chainhash.Hash, input chainclient.Outpoint, meta PublishMeta, log *logx.Logger, out chan<- TxResult) {
	blockCh, cancel := m.blocks.Subscribe()
	defer cancel()

	for {
		select {
		case <-m.quit:
			return
		case <-ctx.Done():
			return
		case height, ok := <-blockCh:
			if !ok {
				return
			}

			confs, err := m.chain.GetTxConfirmations(ctx, txid)
			if err != nil {
				log.Warn("get_tx_confirmations failed, retrying next block", "err", err)
				continue
			}

			if confs == nil {
				reason := m.probeInputStatus(ctx, input)
				if reason == nil {
					log.Debug("evicted, input status probe inconclusive, retrying next block")
					continue
				}
				m.emit(out, txresult.Rejected(txid, *reason))
				return
			}

			if *confs == 0 {
				m.emit(out, txresult.InMempool(txid, height))
				continue
			}

			if *confs < m.minDepth {
				m.emit(out, txresult.RecentlyConfirmed(txid, *confs))
				continue
			}

			if err := m.sink.TransactionConfirmed(ctx, eventbus.TransactionConfirmedEvent{
				ChannelID:    meta.ChannelID,
				RemoteNodeID: meta.RemoteNodeID,
				Tx:           tx,
			}); err != nil {
				log.Warn("failed to emit TransactionConfirmed event", "err", err)
			}
			m.emit(out, txresult.DeeplyBuried(txid, tx))
			return
		}
	}
}

// Stop cancels a still-running Monitor without waiting for a terminal
// TxResult. Safe to call multiple times.
func (m *Monitor) Stop() {
	if !atomic.CompareAndSwapInt32(&m.stopped, 0, 1) {
		return
	}
	close(m.quit)
	m.wg.Wait()
}

func (m *Monitor) emit(out chan<- TxResult, r TxResult) {
	select {
	case out <- r:
	case <-m.quit:
	}
}
