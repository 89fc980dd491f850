package bvh

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant is wrapped by every panic raised when the heuristic
	// detects a broken internal invariant (spare budget overrun, overlapping
	// range windows, misbehaving node opener).
	ErrInvariant = errors.New("bvh: invariant violation")
)

func invariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Errorf("%w: "+format, append([]interface{}{ErrInvariant}, args...)...))
	}
}
