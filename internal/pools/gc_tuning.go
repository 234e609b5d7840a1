package pools

import "runtime/debug"

// OptimizeForHighThroughput raises GOGC so the collector runs less often
// at the cost of peak memory, matching the teacher's
// core/pools/gc_tuning.go default for a request-heavy server. The
// process entry point (cmd/wireserv) calls this once at startup.
func OptimizeForHighThroughput() {
	debug.SetGCPercent(300)
}
