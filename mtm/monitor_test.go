package mtm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainforge/rtxp/chainclient"
)

var (
	errBadTxnsInputsMissingOrSpent = errors.New("bad-txns-inputs-missingorspent")
	errRejectingReplacement        = errors.New("rejecting replacement txn; too many potential replacements")
)

func newTestTx() *wire.MsgTx { return wire.NewMsgTx(wire.TxVersion) }

func drainUntilTerminal(t *testing.T, ch <-chan TxResult, timeout time.Duration) []TxResult {
	t.Helper()
	var got []TxResult
	deadline := time.After(timeout)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, r)
			if r.IsTerminal() {
				return got
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal TxResult")
			return got
		}
	}
}

// TestMonitor_HappyPath covers S1: constant feerate, no bumps, terminal
// confirmation (KindDeeplyBuried) once confs reaches min_depth=3.
func TestMonitor_HappyPath(t *testing.T) {
	tx := newTestTx()
	txid := tx.TxHash()

	confsByBlock := map[chainclient.BlockHeight]uint32{1: 0, 2: 1, 3: 2, 4: 3}
	var currentBlock chainclient.BlockHeight

	chain := &fakeChain{
		confirmationsFn: func(got chainhash.Hash) (*uint32, error) {
			if got != txid {
				return nil, nil
			}
			c := confsByBlock[currentBlock]
			return &c, nil
		},
	}
	blocks := &fakeBlockSource{}
	sink := &fakeSink{}

	mon := NewMonitor(chain, blocks, sink, 3)
	resultCh := mon.Publish(context.Background(), tx, chainclient.Outpoint{}, PublishMeta{Desc: "test"})
	time.Sleep(50 * time.Millisecond) // let the monitor publish and subscribe to block events

	var results []TxResult
	for _, h := range []chainclient.BlockHeight{1, 2, 3, 4} {
		currentBlock = h
		blocks.push(h)
		select {
		case r := <-resultCh:
			results = append(results, r)
			if r.IsTerminal() {
				goto done
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for result at block %d", h)
		}
	}
done:
	if len(results) == 0 || !results[len(results)-1].IsTerminal() {
		t.Fatalf("expected a terminal result, got %+v", results)
	}
	last := results[len(results)-1]
	if last.Kind != KindDeeplyBuried {
		t.Errorf("terminal kind = %v, want KindDeeplyBuried", last.Kind)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.published) != 1 {
		t.Errorf("TransactionPublished events = %d, want 1", len(sink.published))
	}
	if len(sink.confirmed) != 1 {
		t.Errorf("TransactionConfirmed events = %d, want 1", len(sink.confirmed))
	}
}

// TestMonitor_S3_ConflictingConfirmed: publish rejected as
// inputs-missing-or-spent, probe shows the parent already confirmed and
// the outpoint unspendable even excluding mempool.
func TestMonitor_S3_ConflictingConfirmed(t *testing.T) {
	tx := newTestTx()
	chain := &fakeChain{
		publishErr: errBadTxnsInputsMissingOrSpent,
		confirmationsFn: func(chainhash.Hash) (*uint32, error) {
			c := uint32(3)
			return &c, nil
		},
		spendableFn: func(chainclient.Outpoint, bool) (bool, error) { return false, nil },
	}
	blocks := &fakeBlockSource{}
	sink := &fakeSink{}

	mon := NewMonitor(chain, blocks, sink, 3)
	resultCh := mon.Publish(context.Background(), tx, chainclient.Outpoint{}, PublishMeta{Desc: "test"})

	results := drainUntilTerminal(t, resultCh, 2*time.Second)
	last := results[len(results)-1]
	if last.Kind != KindRejected || last.Reason != ReasonConflictingTxConfirmed {
		t.Errorf("got %+v, want Rejected(ConflictingTxConfirmed)", last)
	}
}

// TestMonitor_S4_WalletInputGone: publish rejected as
// inputs-missing-or-spent, probe shows the input fully spendable both
// ways -- i.e. our own wallet re-spent it elsewhere.
func TestMonitor_S4_WalletInputGone(t *testing.T) {
	tx := newTestTx()
	chain := &fakeChain{
		publishErr: errBadTxnsInputsMissingOrSpent,
		confirmationsFn: func(chainhash.Hash) (*uint32, error) {
			c := uint32(1)
			return &c, nil
		},
		spendableFn: func(chainclient.Outpoint, bool) (bool, error) { return true, nil },
	}
	blocks := &fakeBlockSource{}
	sink := &fakeSink{}

	mon := NewMonitor(chain, blocks, sink, 3)
	resultCh := mon.Publish(context.Background(), tx, chainclient.Outpoint{}, PublishMeta{Desc: "test"})

	results := drainUntilTerminal(t, resultCh, 2*time.Second)
	last := results[len(results)-1]
	if last.Kind != KindRejected || last.Reason != ReasonWalletInputGone {
		t.Errorf("got %+v, want Rejected(WalletInputGone)", last)
	}
}

// TestMonitor_RejectingReplacement: publish fails outright.
func TestMonitor_RejectingReplacement(t *testing.T) {
	tx := newTestTx()
	chain := &fakeChain{publishErr: errRejectingReplacement}
	blocks := &fakeBlockSource{}
	sink := &fakeSink{}

	mon := NewMonitor(chain, blocks, sink, 3)
	resultCh := mon.Publish(context.Background(), tx, chainclient.Outpoint{}, PublishMeta{Desc: "test"})

	results := drainUntilTerminal(t, resultCh, 2*time.Second)
	last := results[len(results)-1]
	if last.Kind != KindRejected || last.Reason != ReasonConflictingTxUnconfirmed {
		t.Errorf("got %+v, want Rejected(ConflictingTxUnconfirmed)", last)
	}
}
