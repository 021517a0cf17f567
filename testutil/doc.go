// Package testutil provides testing utilities for soamem.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Values
//
//	rng := testutil.NewRNG(seed)
//	pos := make([]float32, 3)
//	rng.FillUniformRange(pos, -100, 100)
//
// # Random Operation Scripts
//
// Script produces a reproducible sequence of structural operations over a
// fixed number of groups, for driving a manager against a simple model:
//
//	for _, op := range rng.Script(1000, 4) {
//	    switch op.Kind {
//	    case testutil.OpCreate: ...
//	    }
//	}
package testutil
