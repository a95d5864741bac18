// Package preflight checks that a host can run the indexer before the
// daemon starts: free disk and write access in the data directory, the
// file descriptor limit, and the integrity of any existing index and
// database.
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{DataDir: dir})
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
