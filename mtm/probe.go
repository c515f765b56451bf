package mtm

import (
	"context"
	"sync"

	"github.com/chainforge/rtxp/chainclient"
	"github.com/chainforge/rtxp/internal/metricsx"
)

// probeInputStatus implements check_input_status (spec.md §4.2 step 3):
// concurrently fetch parent confirmations and spendability with/without
// the mempool, then derive the terminal reason. Returns nil if any of
// the three RPCs failed — spec.md: "probe RPC error -> TxSkipped{retry_next_block: true}",
// which this module treats as "no terminal reason yet, the caller
// retries on the next block" rather than surfacing TxSkipped as its own
// TxResult variant.
func (m *Monitor) probeInputStatus(ctx context.Context, input chainclient.Outpoint) *TxRejectedReason {
	metricsx.MonitorProbesIssued.Inc(1)

	var (
		wg                         sync.WaitGroup
		parentConfs                ParentConfs
		spendableExcl, spendableIncl bool
		errConfs, errExcl, errIncl error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		confs, err := m.chain.GetTxConfirmations(ctx, input.TxID)
		errConfs = err
		if err == nil {
			parentConfs = ParentConfs{Known: confs != nil}
			if confs != nil {
				parentConfs.Confs = *confs
			}
		}
	}()
	go func() {
		defer wg.Done()
		ok, err := m.chain.IsOutputSpendable(ctx, input, false)
		spendableExcl, errExcl = ok, err
	}()
	go func() {
		defer wg.Done()
		ok, err := m.chain.IsOutputSpendable(ctx, input, true)
		spendableIncl, errIncl = ok, err
	}()
	wg.Wait()

	if errConfs != nil || errExcl != nil || errIncl != nil {
		logger.Debug("input status probe RPC error, treated as TxSkipped{retry_next_block}",
			"err_confs", errConfs, "err_excl", errExcl, "err_incl", errIncl)
		return nil
	}

	status := DeriveInputStatus(parentConfs, spendableExcl, spendableIncl)
	reason := status.TerminalReason()
	return &reason
}
