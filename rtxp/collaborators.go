package rtxp

import (
	"context"

	"github.com/btcsuite/btcd/wire"
)

// The three collaborators below are external subsystems per spec.md §1:
// "Out of scope... specified only by the interface the core consumes."
// This module only calls them; it never decides whether to check
// preconditions more thoroughly, how to construct a witness, or how to
// source wallet inputs.

// PrePublisher checks parent confirmations, signatures, dust and
// anchor-specific preconditions (spec.md §1).
type PrePublisher interface {
	CheckPreconditions(ctx context.Context, cmd ReplaceableTxCmd) (*wire.MsgTx, error)
}

// TimeLockMonitor waits until a transaction's absolute/relative time
// locks are satisfied (spec.md §1). Anchor claims with no locks are
// expected to return immediately.
type TimeLockMonitor interface {
	WaitForTimeLocks(ctx context.Context, tx *wire.MsgTx) error
}

// Funder adds wallet inputs/outputs to reach a target feerate, signs,
// and returns a FundedTx (spec.md §1). previous is nil on the first
// attempt and the current attempt's FundedTx during an RBF bump.
type Funder interface {
	Fund(ctx context.Context, cmd ReplaceableTxCmd, targetFeerate Feerate, previous *FundedTx) (*FundedTx, error)
}
