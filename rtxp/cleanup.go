package rtxp

import (
	"context"

	set "gopkg.in/fatih/set.v0"
)

// utxosToUnlock computes inputs(failed) \ inputs(survivor) \ {input_outpoint},
// the set-difference of spec.md §4.1 Cleanup. survivor may be nil (the
// Stopping state with no winning attempt). Grounded on the teacher's
// own family/ancestor/uncle set bookkeeping in work/worker.go.
func utxosToUnlock(failed FundedTx, survivor *FundedTx, inputOutpoint Outpoint) []Outpoint {
	survivorSet := set.New()
	if survivor != nil {
		for _, op := range survivor.InputOutpoints() {
			survivorSet.Add(op)
		}
	}

	out := make([]Outpoint, 0, len(failed.SignedTx.TxIn))
	for _, op := range failed.InputOutpoints() {
		if op == inputOutpoint {
			continue
		}
		if survivorSet.Has(op) {
			continue
		}
		out = append(out, op)
	}
	return out
}

// retireAttempt abandons failed's broadcast and unlocks every UTXO it
// exclusively owns relative to survivor, per spec.md §4.1 Cleanup.
// AbandonTransaction failures are ignored: "no-op if mined or still in
// mempool" (spec.md §4.1).
func (p *Publisher) retireAttempt(ctx context.Context, failed FundedTx, survivor *FundedTx) {
	if err := p.deps.Chain.AbandonTransaction(ctx, failed.TxID()); err != nil {
		p.log.Debug("abandon_transaction failed, ignoring", "txid", failed.TxID(), "err", err)
	}

	unlock := utxosToUnlock(failed, survivor, p.cmd.InputOutpoint)
	if len(unlock) == 0 {
		return
	}
	if err := p.deps.Chain.UnlockOutpoints(ctx, unlock); err != nil {
		p.log.Warn("unlock_outpoints failed", "outpoints", unlock, "err", err)
	}
}
