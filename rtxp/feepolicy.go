package rtxp

// BlockTarget implements the non-monotonic target-feerate policy table
// of spec.md §4.1, mapping the number of blocks remaining before the
// deadline to a fee-estimator block target. The 18→12 dip is
// intentional: it accelerates aggressiveness as the deadline
// approaches rather than degrading smoothly.
func BlockTarget(remaining int64) uint16 {
	switch {
	case remaining >= 144:
		return 144
	case remaining >= 72:
		return 72
	case remaining >= 36:
		return 36
	case remaining >= 18:
		return 12
	case remaining >= 12:
		return 6
	case remaining >= 2:
		return 2
	default:
		return 1
	}
}

// Remaining computes confirm_before - current_height as a plain int64
// so BlockTarget and DecideBump can reason about it without worrying
// about BlockHeight underflow.
func Remaining(confirmBefore, currentHeight BlockHeight) int64 {
	return int64(confirmBefore) - int64(currentHeight)
}

// DecideBump implements the bump decision of spec.md §4.1, evaluated in
// the Waiting state upon CheckFee(h):
//
//   - if confirm_before - h <= 6: force a bump to max(r_curr, r_prev * bumpRatio)
//   - else if r_prev * bumpRatio <= r_curr: bump to r_curr
//   - else: no bump
//
// Invariant 4 (monotone bump): whenever bump is true, target is always
// >= prevFeerate * bumpRatio.
func DecideBump(confirmBefore, currentHeight BlockHeight, prevFeerate, currFeerate Feerate, bumpRatio float64) (bump bool, target Feerate) {
	remaining := Remaining(confirmBefore, currentHeight)
	floor := Feerate(float64(prevFeerate) * bumpRatio)

	if remaining <= 6 {
		if currFeerate > floor {
			return true, currFeerate
		}
		return true, floor
	}

	if floor <= currFeerate {
		return true, currFeerate
	}

	return false, prevFeerate
}
