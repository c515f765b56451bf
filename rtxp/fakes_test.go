package rtxp

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/event"

	"github.com/chainforge/rtxp/chainclient"
	"github.com/chainforge/rtxp/eventbus"
)

// fakePrePublisher returns a fixed tx/error pair, recording every call.
type fakePrePublisher struct {
	mu    sync.Mutex
	tx    *wire.MsgTx
	err   error
	calls int
}

func (f *fakePrePublisher) CheckPreconditions(context.Context, ReplaceableTxCmd) (*wire.MsgTx, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

// fakeTimeLockMonitor returns immediately unless err is set.
type fakeTimeLockMonitor struct{ err error }

func (f *fakeTimeLockMonitor) WaitForTimeLocks(context.Context, *wire.MsgTx) error { return f.err }

// fakeFunder hands back a FundedTx built from fundFn, or a fixed error.
// Every invocation is recorded so tests can assert how many funding
// rounds ran (e.g. exactly one bump during RBF).
type fakeFunder struct {
	mu       sync.Mutex
	fundFn   func(targetFeerate Feerate, previous *FundedTx) (*FundedTx, error)
	requests []Feerate
}

func (f *fakeFunder) Fund(_ context.Context, _ ReplaceableTxCmd, targetFeerate Feerate, previous *FundedTx) (*FundedTx, error) {
	f.mu.Lock()
	f.requests = append(f.requests, targetFeerate)
	f.mu.Unlock()
	return f.fundFn(targetFeerate, previous)
}

// fakeChain is a minimal chainclient.BlockchainClient double shared by
// publisher-level tests; every attempt's MTM talks to the same fake, so
// tests distinguish attempts by txid in their func fields.
type fakeChain struct {
	mu sync.Mutex

	publishErr func(tx *wire.MsgTx) error

	confirmationsFn func(txid chainhash.Hash) (*uint32, error)
	spendableFn     func(op chainclient.Outpoint, includeMempool bool) (bool, error)

	abandoned []chainhash.Hash
	unlocked  [][]chainclient.Outpoint
}

func (f *fakeChain) PublishTransaction(_ context.Context, tx *wire.MsgTx) error {
	if f.publishErr == nil {
		return nil
	}
	return f.publishErr(tx)
}

func (f *fakeChain) GetTxConfirmations(_ context.Context, txid chainhash.Hash) (*uint32, error) {
	if f.confirmationsFn == nil {
		c := uint32(0)
		return &c, nil
	}
	return f.confirmationsFn(txid)
}

func (f *fakeChain) IsOutputSpendable(_ context.Context, op chainclient.Outpoint, includeMempool bool) (bool, error) {
	if f.spendableFn == nil {
		return true, nil
	}
	return f.spendableFn(op, includeMempool)
}

func (f *fakeChain) AbandonTransaction(_ context.Context, txid chainhash.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, txid)
	return nil
}

func (f *fakeChain) UnlockOutpoints(_ context.Context, ops []chainclient.Outpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocked = append(f.unlocked, ops)
	return nil
}

// fakeFeeEstimator echoes whatever feerate its feerateFn produces for
// the requested block target.
type fakeFeeEstimator struct {
	feerateFn func(target uint16) (Feerate, error)
}

func (f *fakeFeeEstimator) GetFeeratePerKW(_ context.Context, target uint16) (Feerate, error) {
	return f.feerateFn(target)
}

// fakeBlockSource lets a test push block heights to every subscriber on
// demand, mirroring chainclient.PollingBlockHeightSource's fan-out.
type fakeBlockSource struct {
	feed event.Feed
}

func (s *fakeBlockSource) Subscribe() (<-chan BlockHeight, func()) {
	ch := make(chan BlockHeight, 16)
	sub := s.feed.Subscribe(ch)
	return ch, func() { sub.Unsubscribe() }
}

func (s *fakeBlockSource) push(h BlockHeight) { s.feed.Send(h) }

// fakeSink records every emitted event instead of publishing anywhere real.
type fakeSink struct {
	mu        sync.Mutex
	published []eventbus.TransactionPublishedEvent
	confirmed []eventbus.TransactionConfirmedEvent
}

func (s *fakeSink) TransactionPublished(_ context.Context, e eventbus.TransactionPublishedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, e)
	return nil
}

func (s *fakeSink) TransactionConfirmed(_ context.Context, e eventbus.TransactionConfirmedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = append(s.confirmed, e)
	return nil
}
