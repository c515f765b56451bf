package mtm

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/event"

	"github.com/chainforge/rtxp/chainclient"
	"github.com/chainforge/rtxp/eventbus"
)

// fakeChain is a hand-written test double for chainclient.BlockchainClient;
// every RPC is a settable func field so each test only wires what it needs.
type fakeChain struct {
	mu sync.Mutex

	publishErr error

	confirmationsFn func(txid chainhash.Hash) (*uint32, error)
	spendableFn     func(op chainclient.Outpoint, includeMempool bool) (bool, error)

	abandoned []chainhash.Hash
	unlocked  [][]chainclient.Outpoint
}

func (f *fakeChain) PublishTransaction(context.Context, *wire.MsgTx) error { return f.publishErr }

func (f *fakeChain) GetTxConfirmations(_ context.Context, txid chainhash.Hash) (*uint32, error) {
	return f.confirmationsFn(txid)
}

func (f *fakeChain) IsOutputSpendable(_ context.Context, op chainclient.Outpoint, includeMempool bool) (bool, error) {
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

// fakeBlockSource lets a test push block heights on demand to every
// subscriber, mirroring chainclient.PollingBlockHeightSource's feed
// fan-out without the real RPC polling loop.
type fakeBlockSource struct {
	feed event.Feed
}

func (s *fakeBlockSource) Subscribe() (<-chan chainclient.BlockHeight, func()) {
	ch := make(chan chainclient.BlockHeight, 16)
	sub := s.feed.Subscribe(ch)
	return ch, func() {
		sub.Unsubscribe()
	}
}

func (s *fakeBlockSource) push(h chainclient.BlockHeight) { s.feed.Send(h) }

// fakeSink records emitted events instead of publishing anywhere real.
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

func uint32p(v uint32) *uint32 { return &v }
