package rtxp

import (
	"math/rand"
	"time"
)

// timerKey names a keyed one-shot timer, per spec.md §5. The publisher
// currently only arms one key (CheckFeeKey) but the map-keyed shape is
// kept general, matching design note §9's "keyed map {key -> deadline,
// msg}" model.
type timerKey string

const checkFeeKey timerKey = "CheckFeeKey"

// keyedTimers re-arms by cancelling the prior entry for a key, so at
// most one timer per key is ever pending.
type keyedTimers struct {
	timers map[timerKey]*time.Timer
}

func newKeyedTimers() *keyedTimers {
	return &keyedTimers{timers: make(map[timerKey]*time.Timer)}
}

// arm (re-)schedules key to fire fn after d, cancelling any timer
// already pending under key.
func (k *keyedTimers) arm(key timerKey, d time.Duration, fn func()) {
	if t, ok := k.timers[key]; ok {
		t.Stop()
	}
	k.timers[key] = time.AfterFunc(d, fn)
}

func (k *keyedTimers) cancel(key timerKey) {
	if t, ok := k.timers[key]; ok {
		t.Stop()
		delete(k.timers, key)
	}
}

func (k *keyedTimers) stopAll() {
	for key, t := range k.timers {
		t.Stop()
		delete(k.timers, key)
	}
}

// jitteredDelay returns a random duration in [1ms, max], the
// herd-effect avoidance window of spec.md §4.1 ("Herd-effect
// avoidance"): at most one CheckFee is ever in flight, and its delay is
// randomized so that N publishers woken by the same block don't all
// bump the network fee at once.
func jitteredDelay(max time.Duration) time.Duration {
	if max <= time.Millisecond {
		return time.Millisecond
	}
	return time.Millisecond + time.Duration(rand.Int63n(int64(max-time.Millisecond)))
}
