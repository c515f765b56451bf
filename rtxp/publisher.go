package rtxp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/pborman/uuid"

	"github.com/chainforge/rtxp/chainclient"
	"github.com/chainforge/rtxp/eventbus"
	"github.com/chainforge/rtxp/internal/logx"
	"github.com/chainforge/rtxp/internal/metricsx"
	"github.com/chainforge/rtxp/mtm"
	"github.com/chainforge/rtxp/txresult"
)

var logger = logx.RootRTxP

// pubState is one node of the state machine table in spec.md §4.1.
type pubState int

const (
	stCheckingPreconditions pubState = iota
	stCheckingTimeLocks
	stFunding
	stWaiting
	stFundingReplacement
	stPublishing
	stCleaningUp
	stStopping
	stStopped
)

func (s pubState) String() string {
	switch s {
	case stCheckingPreconditions:
		return "CheckingPreconditions"
	case stCheckingTimeLocks:
		return "CheckingTimeLocks"
	case stFunding:
		return "Funding"
	case stWaiting:
		return "Waiting"
	case stFundingReplacement:
		return "FundingReplacement"
	case stPublishing:
		return "Publishing"
	case stCleaningUp:
		return "CleaningUp"
	case stStopping:
		return "Stopping"
	case stStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// attemptSlot tags which in-flight attempt a message belongs to.
// slotSingle is used while Waiting owns exactly one attempt; during
// Publishing the two slots are slotPrevious/slotBumped (spec.md §4.1
// "Concurrent RBF attempts"). The Publisher keeps each slot's attempt in
// its own field (single, previous, bumped); the state transitions, not
// the types, keep at most two of them set at once.
type attemptSlot int

const (
	slotSingle attemptSlot = iota
	slotPrevious
	slotBumped
)

// attempt is one broadcast attempt's live state: its funded tx and the
// MTM tracking it. slot is accessed atomically: the attempt's identity
// (single/previous/bumped) can be relabeled by evaluateBump/cleanup
// while the attempt's own result-forwarding goroutine keeps running,
// so every forwarded message must read the current label rather than
// a tag fixed at goroutine-start time.
type attempt struct {
	funded  FundedTx
	monitor *mtm.Monitor
	cancel  context.CancelFunc
	slot    int32
}

// Internal messages. Every fallible child interaction is converted to
// one of these before it reaches the state machine (spec.md §7:
// "every fallible action is converted to a typed outcome message
// before dispatch").
type (
	msgPreconditionsOk     struct{ tx *wire.MsgTx }
	msgPreconditionsFailed struct{ err error }
	msgTimeLocksOk         struct{}
	msgTimeLocksFailed     struct{ err error }
	msgFundingReady        struct{ funded FundedTx }
	msgFundingFailed       struct{ err error }
	msgAttemptResult       struct {
		slot        attemptSlot
		result      txresult.TxResult
		redelivered bool
	}
	msgRedeliver struct {
		slot   attemptSlot
		result txresult.TxResult
	}
	msgCheckFee    struct{ height BlockHeight }
	msgBlockHeight struct{ height BlockHeight }
	msgStop        struct{}
	msgCleanupDone struct{}
)

// Deps groups the external collaborators a Publisher is constructed
// with (spec.md §1's out-of-scope subsystems).
type Deps struct {
	PrePublisher    PrePublisher
	TimeLockMonitor TimeLockMonitor
	Funder          Funder
	Chain           chainclient.BlockchainClient
	FeeEstimator    chainclient.FeeEstimator
	Blocks          chainclient.BlockHeightSource
	Sink            eventbus.EventSink
}

// Publisher is one instance of the Replaceable Transaction Publisher,
// spec.md §4.1: a single-threaded, cooperative actor driving one
// ReplaceableTxCmd from CheckingPreconditions to Stopped.
type Publisher struct {
	cmd       ReplaceableTxCmd
	cfg       Config
	publishID string
	log       *logx.Logger

	deps Deps

	msgCh  chan interface{}
	stash  *stash
	timers *keyedTimers

	cancel context.CancelFunc

	quit    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	started int32

	state         pubState
	currentHeight BlockHeight
	reported      bool

	single   *attempt
	previous *attempt
	bumped   *attempt

	replyTo chan<- PublishTxResult
}

// NewPublisher constructs a Publisher; call Start to begin driving it.
func NewPublisher(cmd ReplaceableTxCmd, cfg Config, deps Deps) *Publisher {
	cfg = cfg.sanitize()
	id := uuid.New()

	lc := LogContext{PublishID: id, ChannelID: cmd.ChannelID, RemoteNodeID: cmd.RemoteNodeID, TxDesc: cmd.Desc}

	return &Publisher{
		cmd:       cmd,
		cfg:       cfg,
		publishID: id,
		log:       logger.NewWith(lc.KV()...),
		deps:      deps,
		msgCh:     make(chan interface{}, 32),
		stash:     newStash(cfg.StashSize),
		timers:    newKeyedTimers(),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		state:     stCheckingPreconditions,
	}
}

// Start begins the actor's single goroutine, delivering exactly one
// PublishTxResult to replyTo once terminal (spec.md §6 Caller contract).
// Calling Start twice panics: "Publish command exactly once per
// publisher instance" (spec.md §3 Lifecycles).
func (p *Publisher) Start(ctx context.Context, replyTo chan<- PublishTxResult) {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		panic("rtxp: Start called twice on the same Publisher")
	}
	p.replyTo = replyTo

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(p.done)
		p.run(ctx)
	}()
}

// Stop requests cooperative shutdown; safe to call multiple times and
// from any goroutine (spec.md §5 Cancellation).
func (p *Publisher) Stop() {
	select {
	case p.msgCh <- msgStop{}:
	case <-p.quit:
	}
}

// Done reports when the Publisher has fully terminated: terminal
// result delivered and all UTXO cleanup finished (spec.md §3).
func (p *Publisher) Done() <-chan struct{} { return p.done }

func (p *Publisher) send(msg interface{}) {
	select {
	case p.msgCh <- msg:
	case <-p.quit:
	}
}

// run is the actor's single select loop: one message processed at a
// time, no shared mutable state with any other entity (spec.md §5).
func (p *Publisher) run(parentCtx context.Context) {
	ctx, cancel := context.WithCancel(parentCtx)
	p.cancel = cancel
	defer cancel()

	p.beginCheckingPreconditions(ctx)

	blockCh, cancelBlocks := p.deps.Blocks.Subscribe()
	defer cancelBlocks()

	for p.state != stStopped {
		select {
		case msg := <-p.msgCh:
			p.handle(ctx, msg)
		case h, ok := <-blockCh:
			if ok {
				p.handle(ctx, msgBlockHeight{height: h})
			}
		}
	}

	close(p.quit)
	p.timers.stopAll()
}

// handle dispatches one message. Stop is accepted in every non-terminal
// state and bypasses stashing entirely (spec.md §5: "Stop is
// cooperative... A second Stop during cleanup is a no-op", matching S6).
func (p *Publisher) handle(ctx context.Context, msg interface{}) {
	if _, ok := msg.(msgStop); ok {
		p.beginStopping(ctx)
		return
	}

	if p.state == stFunding || p.state == stFundingReplacement {
		if !p.isAwaitedFundingMsg(msg) {
			if dropped := p.stash.push(msg); dropped {
				p.log.Warn("message stash full, dropping oldest entry")
			}
			return
		}
	}

	switch p.state {
	case stCheckingPreconditions:
		p.handleCheckingPreconditions(ctx, msg)
	case stCheckingTimeLocks:
		p.handleCheckingTimeLocks(ctx, msg)
	case stFunding:
		p.handleFunding(ctx, msg, false)
	case stFundingReplacement:
		p.handleFunding(ctx, msg, true)
	case stWaiting:
		p.handleWaiting(ctx, msg)
	case stPublishing:
		p.handlePublishing(ctx, msg)
	case stCleaningUp:
		p.handleCleaningUp(ctx, msg)
	case stStopping:
		p.handleStopping(ctx, msg)
	}
}

func (p *Publisher) isAwaitedFundingMsg(msg interface{}) bool {
	switch msg.(type) {
	case msgFundingReady, msgFundingFailed:
		return true
	default:
		return false
	}
}

// drainStash replays every stashed message in arrival order, in-line,
// so they are fully processed before the actor returns to its main
// select loop and observes anything newer (spec.md §5 Ordering).
func (p *Publisher) drainStash(ctx context.Context) {
	for _, msg := range p.stash.drain() {
		p.handle(ctx, msg)
	}
}

// --- CheckingPreconditions -------------------------------------------------

func (p *Publisher) beginCheckingPreconditions(ctx context.Context) {
	p.state = stCheckingPreconditions
	go func() {
		tx, err := p.deps.PrePublisher.CheckPreconditions(ctx, p.cmd)
		if err != nil {
			p.send(msgPreconditionsFailed{err: err})
			return
		}
		p.send(msgPreconditionsOk{tx: tx})
	}()
}

func (p *Publisher) handleCheckingPreconditions(ctx context.Context, msg interface{}) {
	switch m := msg.(type) {
	case msgPreconditionsOk:
		p.log.Debug("preconditions ok")
		p.beginCheckingTimeLocks(ctx, m.tx)
	case msgPreconditionsFailed:
		p.log.Info("preconditions failed", "err", m.err)
		p.reportRejected(ctx, txresult.ReasonPreconditionsFailed)
		p.beginStopping(ctx)
	}
}

// --- CheckingTimeLocks ------------------------------------------------------

func (p *Publisher) beginCheckingTimeLocks(ctx context.Context, tx *wire.MsgTx) {
	p.state = stCheckingTimeLocks
	go func() {
		if err := p.deps.TimeLockMonitor.WaitForTimeLocks(ctx, tx); err != nil {
			p.send(msgTimeLocksFailed{err: err})
			return
		}
		p.send(msgTimeLocksOk{})
	}()
}

func (p *Publisher) handleCheckingTimeLocks(ctx context.Context, msg interface{}) {
	switch m := msg.(type) {
	case msgTimeLocksOk:
		p.log.Debug("time locks satisfied")
		p.beginFunding(ctx, nil, false, 0)
	case msgTimeLocksFailed:
		// Not in spec.md's transition table (only TimeLocksOk is listed);
		// treated the same as an unknown publish failure rather than
		// hanging forever, matching the Unknown error class of §7.
		p.log.Warn("time-lock wait failed", "err", m.err)
		p.reportRejected(ctx, txresult.ReasonUnknownTxFailure)
		p.beginStopping(ctx)
	}
}

// --- Funding / FundingReplacement -------------------------------------------

// beginFunding asks the funder for a FundedTx at the current
// target-feerate (spec.md §4.1 Target-feerate policy). previous is the
// attempt being bumped, or nil on the first funding round. For a
// replacement, bumpTo is the feerate chosen by DecideBump and is used
// instead of a fresh estimate.
func (p *Publisher) beginFunding(ctx context.Context, previous *FundedTx, replacement bool, bumpTo Feerate) {
	if replacement {
		p.state = stFundingReplacement
	} else {
		p.state = stFunding
	}

	target := BlockTarget(Remaining(p.cmd.TxInfo.ConfirmBefore, p.currentHeight))
	go func() {
		feerate := bumpTo
		if !replacement {
			var err error
			feerate, err = p.deps.FeeEstimator.GetFeeratePerKW(ctx, target)
			if err != nil {
				p.send(msgFundingFailed{err: err})
				return
			}
		}
		funded, err := p.deps.Funder.Fund(ctx, p.cmd, feerate, previous)
		if err != nil {
			p.send(msgFundingFailed{err: err})
			return
		}
		p.send(msgFundingReady{funded: *funded})
	}()
}

func (p *Publisher) handleFunding(ctx context.Context, msg interface{}, replacement bool) {
	switch m := msg.(type) {
	case msgFundingReady:
		if !replacement {
			p.log.Info("funded", "feerate", m.funded.Feerate, "fee", m.funded.Fee)
			p.startSingleAttempt(ctx, m.funded)
			p.state = stWaiting
			p.drainStash(ctx)
			return
		}
		p.log.Info("replacement funded", "feerate", m.funded.Feerate, "fee", m.funded.Fee)
		p.startBumpedAttempt(ctx, m.funded)
		p.state = stPublishing
		p.drainStash(ctx)

	case msgFundingFailed:
		if !replacement {
			p.log.Info("funding failed", "err", m.err)
			p.reportRejected(ctx, txresult.ReasonFundingFailed)
			p.beginStopping(ctx)
			return
		}
		// FundingReplacement failure keeps the previous attempt and
		// returns to Waiting (spec.md §4.1 state table).
		p.log.Warn("replacement funding failed, keeping previous attempt", "err", m.err)
		p.state = stWaiting
		p.drainStash(ctx)
	}
}

// --- Waiting -----------------------------------------------------------------

func (p *Publisher) startSingleAttempt(ctx context.Context, funded FundedTx) {
	childCtx, cancel := context.WithCancel(ctx)
	mon := mtm.NewMonitor(p.deps.Chain, p.deps.Blocks, p.deps.Sink, p.cfg.MinDepthBlocks)
	resultCh := mon.Publish(childCtx, funded.SignedTx, p.cmd.InputOutpoint, p.publishMeta(funded))

	p.single = &attempt{funded: funded, monitor: mon, cancel: cancel, slot: int32(slotSingle)}
	p.forwardResults(p.single, resultCh)
}

func (p *Publisher) publishMeta(funded FundedTx) mtm.PublishMeta {
	return mtm.PublishMeta{
		ChannelID:    p.cmd.ChannelID,
		RemoteNodeID: p.cmd.RemoteNodeID,
		Desc:         p.cmd.Desc,
		Fee:          funded.Fee,
	}
}

// forwardResults relays one MTM's result stream into the actor's own
// message channel, tagged by a's current slot so the handler knows
// which attempt a result belongs to. The tag is read fresh for every
// message (not fixed at goroutine start) because evaluateBump and
// cleanup relabel a live attempt's slot while this goroutine keeps
// running.
func (p *Publisher) forwardResults(a *attempt, resultCh <-chan txresult.TxResult) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for r := range resultCh {
			slot := attemptSlot(atomic.LoadInt32(&a.slot))
			p.send(msgAttemptResult{slot: slot, result: r})
		}
	}()
}

func (p *Publisher) handleWaiting(ctx context.Context, msg interface{}) {
	switch m := msg.(type) {
	case msgBlockHeight:
		p.currentHeight = m.height

	case msgAttemptResult:
		if m.slot != slotSingle {
			return
		}
		switch m.result.Kind {
		case txresult.KindInMempool:
			p.currentHeight = m.result.BlockHeight
			// Herd-effect avoidance: schedule one jittered CheckFee,
			// re-arming cancels any prior pending one (spec.md §4.1).
			height := m.result.BlockHeight
			p.timers.arm(checkFeeKey, jitteredDelay(p.cfg.MaxTxPublishRetryDelay), func() {
				p.send(msgCheckFee{height: height})
			})
		case txresult.KindRecentlyConfirmed:
			p.log.Debug("recently confirmed", "confs", m.result.Confirmations)
		case txresult.KindDeeplyBuried:
			p.log.Info("confirmed")
			p.reportConfirmed(ctx, m.result.Tx)
			p.beginStopping(ctx)
		case txresult.KindRejected:
			p.log.Info("rejected", "reason", m.result.Reason)
			p.reportRejected(ctx, m.result.Reason)
			p.beginStopping(ctx)
		}

	case msgCheckFee:
		p.evaluateBump(ctx, m.height)
	}
}

// evaluateBump implements the bump decision of spec.md §4.1.
func (p *Publisher) evaluateBump(ctx context.Context, height BlockHeight) {
	if p.single == nil {
		return
	}

	target := BlockTarget(Remaining(p.cmd.TxInfo.ConfirmBefore, height))
	feerate, err := p.deps.FeeEstimator.GetFeeratePerKW(ctx, target)
	if err != nil {
		p.log.Warn("fee estimate failed during CheckFee, will retry on next block", "err", err)
		return
	}

	bump, newTarget := DecideBump(p.cmd.TxInfo.ConfirmBefore, height, p.single.funded.Feerate, feerate, p.cfg.BumpRatio)
	if !bump {
		p.log.Debug("no bump needed", "current_feerate", p.single.funded.Feerate, "candidate", feerate)
		return
	}

	p.log.Info("bumping fee", "previous", p.single.funded.Feerate, "target", newTarget)
	metricsx.BumpsIssued.Inc(1)

	prev := p.single.funded
	atomic.StoreInt32(&p.single.slot, int32(slotPrevious))
	p.previous = p.single
	p.single = nil
	p.beginFunding(ctx, &prev, true, newTarget)
}

// --- Publishing (two concurrent attempts during RBF) ------------------------

func (p *Publisher) startBumpedAttempt(ctx context.Context, funded FundedTx) {
	childCtx, cancel := context.WithCancel(ctx)
	mon := mtm.NewMonitor(p.deps.Chain, p.deps.Blocks, p.deps.Sink, p.cfg.MinDepthBlocks)
	resultCh := mon.Publish(childCtx, funded.SignedTx, p.cmd.InputOutpoint, p.publishMeta(funded))

	p.bumped = &attempt{funded: funded, monitor: mon, cancel: cancel, slot: int32(slotBumped)}
	p.forwardResults(p.bumped, resultCh)
}

func (p *Publisher) handlePublishing(ctx context.Context, msg interface{}) {
	switch m := msg.(type) {
	case msgBlockHeight:
		p.currentHeight = m.height

	case msgRedeliver:
		// Stale-result settle delay elapsed; re-process once, now that
		// both attempts are known to the MTMs. redelivered marks it so
		// a still-stale InMempool/RecentlyConfirmed result is dropped
		// instead of being re-armed forever.
		p.handle(ctx, msgAttemptResult{slot: m.slot, result: m.result, redelivered: true})

	case msgAttemptResult:
		if m.slot != slotPrevious && m.slot != slotBumped {
			return
		}

		switch m.result.Kind {
		case txresult.KindInMempool, txresult.KindRecentlyConfirmed:
			// spec.md §4.1 point 5: an intermediate result for the
			// losing attempt may reflect pre-replacement state; redeliver
			// once after a fixed settle delay instead of acting on it
			// now. A result still non-terminal on its second pass through
			// here is dropped rather than re-armed again; Publishing has
			// no further processing for it either way.
			if m.redelivered {
				p.log.Debug("stale intermediate result still non-terminal after settle delay, dropping", "slot", m.slot, "kind", m.result.Kind)
				return
			}
			time.AfterFunc(p.cfg.ReplacementSettleDelay, func() {
				p.send(msgRedeliver{slot: m.slot, result: m.result})
			})

		case txresult.KindDeeplyBuried:
			// Open question in spec.md §9: "should not happen" but
			// handled without crashing — accept confirmation and skip the
			// CleaningUp round since one attempt is already on-chain;
			// beginStopping then abandons and unlocks both attempts.
			p.log.Warn("attempt deeply buried before any rejection arrived", "slot", m.slot)
			p.stopOtherAttempt(m.slot)
			p.reportConfirmed(ctx, m.result.Tx)
			p.beginStopping(ctx)

		case txresult.KindRejected:
			p.log.Info("attempt rejected, retiring loser", "slot", m.slot, "reason", m.result.Reason)
			p.beginCleaningUp(ctx, m.slot)
		}
	}
}

func (p *Publisher) stopOtherAttempt(winner attemptSlot) {
	var loser *attempt
	if winner == slotPrevious {
		loser = p.bumped
	} else {
		loser = p.previous
	}
	if loser != nil {
		loser.cancel()
		loser.monitor.Stop()
	}
}

// --- CleaningUp ---------------------------------------------------------------

func (p *Publisher) beginCleaningUp(ctx context.Context, rejectedSlot attemptSlot) {
	p.state = stCleaningUp

	var failed, survivor *attempt
	if rejectedSlot == slotPrevious {
		failed, survivor = p.previous, p.bumped
	} else {
		failed, survivor = p.bumped, p.previous
	}

	if failed != nil {
		failed.cancel()
		failed.monitor.Stop()
	}
	metricsx.AttemptsCleanedUp.Inc(1)

	var survivorFunded *FundedTx
	if survivor != nil {
		survivorFunded = &survivor.funded
	}

	go func() {
		if failed != nil {
			p.retireAttempt(ctx, failed.funded, survivorFunded)
		}
		p.send(msgCleanupDone{})
	}()
}

func (p *Publisher) handleCleaningUp(ctx context.Context, msg interface{}) {
	switch msg.(type) {
	case msgCleanupDone:
		survivor := p.previous
		if survivor == nil {
			survivor = p.bumped
		}
		if survivor != nil {
			// The survivor goes back to being "the" attempt: relabel its
			// forwarder tag so handleWaiting's slotSingle filter sees it.
			atomic.StoreInt32(&survivor.slot, int32(slotSingle))
		}
		p.single = survivor
		p.previous, p.bumped = nil, nil
		p.state = stWaiting
		p.drainStash(ctx)
	case msgAttemptResult, msgBlockHeight, msgRedeliver:
		// Dropped: cleanup has already decided the winner.
	}
}

// --- Stopping ------------------------------------------------------------------

// beginStopping begins cooperative shutdown: cancel every live
// attempt's children, then abandon+unlock everything outstanding
// before reaching Stopped (spec.md §5 Cancellation, §4.1 Stopping row).
func (p *Publisher) beginStopping(ctx context.Context) {
	if p.state == stStopping || p.state == stStopped {
		return // second Stop during cleanup is a no-op (S6)
	}
	p.state = stStopping

	// Invariant 1 (spec.md §8): every Publish yields exactly one terminal
	// result, even when the caller preempts with Stop before a natural
	// terminal transition would have reported one.
	if !p.reported {
		p.reportRejected(ctx, txresult.ReasonUnknownTxFailure)
	}

	attempts := p.liveAttempts()
	for _, a := range attempts {
		a.cancel()
		a.monitor.Stop()
	}

	// Cancel any in-flight precondition/time-lock/funding RPC; it has no
	// attempt yet, so there's nothing for it to hand back but its own
	// context cancellation.
	if p.cancel != nil {
		p.cancel()
	}

	go func() {
		for _, a := range attempts {
			p.retireAttempt(context.Background(), a.funded, nil)
		}
		p.send(msgCleanupDone{})
	}()
}

func (p *Publisher) liveAttempts() []*attempt {
	var out []*attempt
	if p.single != nil {
		out = append(out, p.single)
	}
	if p.previous != nil {
		out = append(out, p.previous)
	}
	if p.bumped != nil {
		out = append(out, p.bumped)
	}
	return out
}

func (p *Publisher) handleStopping(ctx context.Context, msg interface{}) {
	switch msg.(type) {
	case msgCleanupDone:
		p.single, p.previous, p.bumped = nil, nil, nil
		p.state = stStopped
	default:
		// Any other message arriving while stopping (stale attempt
		// results, block heights) is intentionally dropped: the terminal
		// result has already been decided.
	}
}

// --- Terminal reporting --------------------------------------------------------

func (p *Publisher) reportConfirmed(ctx context.Context, tx *wire.MsgTx) {
	if p.reported {
		return
	}
	p.reported = true
	metricsx.TerminalConfirmed.Inc(1)
	p.deliver(PublishTxResult{PublishID: p.publishID, Cmd: p.cmd, Confirmed: tx})
}

func (p *Publisher) reportRejected(ctx context.Context, reason txresult.TxRejectedReason) {
	if p.reported {
		return
	}
	p.reported = true
	metricsx.TerminalRejected.Inc(1)
	r := reason
	p.deliver(PublishTxResult{PublishID: p.publishID, Cmd: p.cmd, Rejected: &r})
}

func (p *Publisher) deliver(res PublishTxResult) {
	if p.replyTo == nil {
		return
	}
	select {
	case p.replyTo <- res:
	default:
		// replyTo must be sized (or consumed) by the caller; never block
		// the actor's own termination on a slow/absent reader.
		go func() { p.replyTo <- res }()
	}
}
