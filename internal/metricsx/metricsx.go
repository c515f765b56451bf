// Package metricsx wraps rcrowley/go-metrics the way the teacher does
// throughout node/sc and work/worker.go: package-level registered
// counters created once with metrics.NewRegisteredCounter(name, nil)
// and incremented inline at the call site, rather than a metrics facade
// object threaded through every constructor.
package metricsx

import (
	gometrics "github.com/rcrowley/go-metrics"
)

var registry = gometrics.NewRegistry()

// NewCounter registers (or returns the already-registered) counter under name.
func NewCounter(name string) gometrics.Counter {
	c := gometrics.NewCounter()
	if existing := registry.Get(name); existing != nil {
		if cc, ok := existing.(gometrics.Counter); ok {
			return cc
		}
	}
	_ = registry.Register(name, c)
	return c
}

// Registry exposes the package registry for external reporters (e.g. an
// auditor process scraping via rcrowley/go-metrics' own exporters).
func Registry() gometrics.Registry { return registry }

var (
	// BumpsIssued counts every BumpFee decision taken by a Publisher.
	BumpsIssued = NewCounter("rtxp/bumps_issued")

	// AttemptsCleanedUp counts losing attempts cleaned up after RBF.
	AttemptsCleanedUp = NewCounter("rtxp/attempts_cleaned_up")

	// TerminalConfirmed / TerminalRejected count terminal results by kind.
	TerminalConfirmed = NewCounter("rtxp/terminal_confirmed")
	TerminalRejected  = NewCounter("rtxp/terminal_rejected")

	// MonitorProbesIssued counts MTM input-status probes.
	MonitorProbesIssued = NewCounter("mtm/input_status_probes")
)
