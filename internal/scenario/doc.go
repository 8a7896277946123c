// Package scenario runs scripted world edits against a real world and
// checks the resulting topology.
//
// A scenario is a YAML document with a list of steps. Each step performs
// exactly one action: placing or removing cells, reconnecting, saving,
// unloading and loading chunks, reopening the world from its store, or
// checking expectations. The runner uses the real connection manager and
// store; there are no mocks.
//
// Usage:
//
//	sc, err := scenario.LoadFile("line-split.yaml")
//	if err != nil {
//	    return err
//	}
//	res, err := scenario.NewRunner(store.NewMemoryStore()).Run(ctx, sc)
//
// Expectation failures wrap ErrExpectation and name the failing step.
package scenario
