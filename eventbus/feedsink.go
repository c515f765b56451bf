package eventbus

import (
	"context"

	"github.com/ethereum/go-ethereum/event"
)

// FeedSink is the in-process EventSink: two event.Feed instances,
// one per event type, in the same style as the teacher's
// blockchain.ChainHeadEvent/NewTxsEvent feeds (work/worker.go).
type FeedSink struct {
	publishedFeed event.Feed
	confirmedFeed event.Feed
}

// NewFeedSink returns a ready-to-use in-process sink.
func NewFeedSink() *FeedSink {
	return &FeedSink{}
}

func (f *FeedSink) TransactionPublished(_ context.Context, e TransactionPublishedEvent) error {
	f.publishedFeed.Send(e)
	return nil
}

func (f *FeedSink) TransactionConfirmed(_ context.Context, e TransactionConfirmedEvent) error {
	f.confirmedFeed.Send(e)
	return nil
}

// SubscribeTransactionPublished lets an in-process subscriber (metrics,
// a CLI status line, tests) observe published events.
func (f *FeedSink) SubscribeTransactionPublished(ch chan<- TransactionPublishedEvent) event.Subscription {
	return f.publishedFeed.Subscribe(ch)
}

// SubscribeTransactionConfirmed lets an in-process subscriber observe
// confirmed events.
func (f *FeedSink) SubscribeTransactionConfirmed(ch chan<- TransactionConfirmedEvent) event.Subscription {
	return f.confirmedFeed.Subscribe(ch)
}
