// Package timer accumulates elapsed time under caller-chosen tokens.
//
// A Timer maps a comparable token to the total time spent in every
// measured run recorded under it:
//
//	t := timer.New[string]()
//	t.Measure("load", func() { load() })
//	t.Measure("load", func() { load() })
//	d, err := t.Elapsed("load") // sum of both runs
//
// Elapsed fails with ErrTokenNotFound for a token that was never measured.
// Reset zeroes a single token and Clear forgets all of them.
package timer
