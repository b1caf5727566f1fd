// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "math/rand/v2"

// Seed derivation for reproducible sampling.
//
// A request carries at most one base seed. Everything downstream (each
// variable's draw stream, each claim dispatched by the conflict
// controller) derives its own independent stream from that base so that
// sibling computations neither share nor perturb each other's sequences,
// and rerunning the same request yields identical draws.

// splitmix64 is the SplitMix64 finalizer. Used to decorrelate derived
// seeds; a weak (e.g. small integer) base seed still yields well-mixed
// PCG initializers.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	z := x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// NewRand returns a PCG generator initialized from a single seed.
//
// The two PCG state words are derived by mixing so that seeds 1, 2, 3...
// produce unrelated streams.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(splitmix64(seed), splitmix64(seed^0xda3e39cb94b95bdb)))
}

// DeriveSeed produces the seed for sub-stream `stream` of a base seed.
//
// Derived seeds are stable: the same (base, stream) pair always yields
// the same value, and distinct streams yield decorrelated sequences even
// for adjacent stream indices.
func DeriveSeed(base, stream uint64) uint64 {
	return splitmix64(base ^ splitmix64(stream+1))
}

// RandomSeed returns a non-deterministic seed for requests that do not
// supply one.
func RandomSeed() uint64 {
	return rand.Uint64()
}
