// Package itertools provides small [iter.Seq] combinators used by the module graph's lazy
// reporting and edge iteration.
package itertools

import (
	"iter"

	"golang.org/x/exp/constraints"
)

// Cat concatenates the given sequences into one sequence.
func Cat[T any](seqs ...iter.Seq[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, seq := range seqs {
			for v := range seq {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// Map transforms each value of seq.
func Map[Vin, Vout any](seq iter.Seq[Vin], transform func(Vin) Vout) iter.Seq[Vout] {
	return func(yield func(Vout) bool) {
		for v := range seq {
			if !yield(transform(v)) {
				return
			}
		}
	}
}

// Map12 transforms a one-value sequence into a two-value sequence.
func Map12[Vin, Kout, Vout any](seq iter.Seq[Vin], transform func(Vin) (Kout, Vout)) iter.Seq2[Kout, Vout] {
	return func(yield func(Kout, Vout) bool) {
		for v := range seq {
			if !yield(transform(v)) {
				return
			}
		}
	}
}

// Range yields the integers in [start, end).
func Range[Int constraints.Unsigned](start, end Int) iter.Seq[Int] {
	return func(yield func(Int) bool) {
		for i := start; i < end; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

