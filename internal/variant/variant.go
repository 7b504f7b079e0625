// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package variant makes the random choices of a document reproducible.
//
// Every composite draws from its own generator. The generator is seeded
// from the document seed and the FNV-1a hash of the composite's stable
// address, so a choice does not change when unrelated parts of the
// document are edited, and reloading a document with the same seed
// reproduces every choice.
package variant

import (
	"errors"
	"hash/fnv"
	"math/rand/v2"
)

// ErrNotEnoughOptions is returned when more options are requested than exist
// and repetition is not allowed. All options are selected in that case.
var ErrNotEnoughOptions = errors.New("more options requested than available without replacement")

// golden is the 64-bit golden ratio, used to spread nearby seeds.
const golden = 0x9e3779b97f4a7c15

// Seed derives the seed of the composite at address.
func Seed(docSeed uint64, address string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(address))
	return h.Sum64() ^ (docSeed * golden)
}

// Select draws k of n options. Options are numbered from 1. weights, when
// not empty, must have n entries; options with zero weight are never drawn
// unless every remaining option has zero weight. Without replacement the
// result has no duplicates.
func Select(seed uint64, n, k int, withReplacement bool, weights []float64) ([]int, error) {
	if n <= 0 || k <= 0 {
		return nil, nil
	}
	if len(weights) != 0 && len(weights) != n {
		return nil, errors.New("weights must match the number of options")
	}

	var err error
	if !withReplacement && k > n {
		k, err = n, ErrNotEnoughOptions
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1
		if len(weights) != 0 {
			w[i] = max(weights[i], 0)
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^golden))
	out := make([]int, 0, k)
	for len(out) < k {
		i := draw(rng, w)
		out = append(out, i+1)
		if !withReplacement {
			w[i] = -1
		}
	}
	return out, err
}

// draw picks an index with probability proportional to its weight. Negative
// weights mark options already taken.
func draw(rng *rand.Rand, w []float64) int {
	total := 0.0
	var open []int
	for i, x := range w {
		if x < 0 {
			continue
		}
		open = append(open, i)
		total += x
	}
	if total == 0 {
		return open[rng.IntN(len(open))]
	}
	target := rng.Float64() * total
	for _, i := range open {
		target -= w[i]
		if target < 0 {
			return i
		}
	}
	return open[len(open)-1]
}
