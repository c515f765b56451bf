package mtm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPublishError(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorClass
	}{
		{"rejecting replacement txn", ErrClassRejectingReplacement},
		{"REJECTING REPLACEMENT (case-insensitive)", ErrClassRejectingReplacement},
		{"bad-txns-inputs-missingorspent", ErrClassInputsMissingOrSpent},
		{"some other node error", ErrClassUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyPublishError(errors.New(c.msg)), c.msg)
	}
}

// TestDeriveInputStatus_S3 covers S3: conflicting confirmed.
func TestDeriveInputStatus_S3(t *testing.T) {
	status := DeriveInputStatus(ParentConfs{Known: true, Confs: 3}, false, false)
	assert.True(t, status.SpentConfirmed, "expected spent_confirmed for confirmed parent with unspendable excl")
	assert.Equal(t, ReasonConflictingTxConfirmed, status.TerminalReason())
}

// TestDeriveInputStatus_S4 covers S4: wallet input gone.
func TestDeriveInputStatus_S4(t *testing.T) {
	status := DeriveInputStatus(ParentConfs{Known: true, Confs: 1}, true, true)
	assert.False(t, status.SpentConfirmed)
	assert.False(t, status.SpentUnconfirmed)
	assert.Equal(t, ReasonWalletInputGone, status.TerminalReason())
}

func TestDeriveInputStatus_UnconfirmedConflict(t *testing.T) {
	status := DeriveInputStatus(ParentConfs{Known: true, Confs: 0}, false, false)
	assert.False(t, status.SpentConfirmed, "Some(0) parent should never be spent_confirmed")
	assert.True(t, status.SpentUnconfirmed, "expected spent_unconfirmed when mempool-inclusive check shows it spent")
	assert.Equal(t, ReasonConflictingTxUnconfirmed, status.TerminalReason())
}

func TestDeriveInputStatus_UnknownParent(t *testing.T) {
	status := DeriveInputStatus(ParentConfs{Known: false}, true, true)
	assert.False(t, status.SpentConfirmed)
	assert.False(t, status.SpentUnconfirmed)
}
