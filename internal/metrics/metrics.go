// Package metrics provides application-level counters using stdlib expvar.
// Counters are automatically exported on the /debug/vars HTTP endpoint
// when the API server mounts expvar's handler.
package metrics

import "expvar"

// Operation counters.
var (
	ChatTotal         = expvar.NewInt("synapse_chat_total")
	ChatDegraded      = expvar.NewInt("synapse_chat_degraded_total")
	AttemptTotal      = expvar.NewInt("synapse_attempt_total")
	AttemptFailed     = expvar.NewInt("synapse_attempt_failed_total")
	AttemptSkipped    = expvar.NewInt("synapse_attempt_skipped_total")
	MemoryWriteTotal  = expvar.NewInt("synapse_memory_write_total")
	MemorySearchTotal = expvar.NewInt("synapse_memory_search_total")
	SweepExpiredTotal = expvar.NewInt("synapse_sweep_expired_total")
	SweepDeletedTotal = expvar.NewInt("synapse_sweep_deleted_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }
