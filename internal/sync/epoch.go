package sync

import (
	"errors"
	"sync/atomic"
)

// errTerminated unwinds a loop whose generation was superseded or whose
// account was disabled. It is never reported to the user.
var errTerminated = errors.New("check loop terminated")

// epoch is a generation counter. A loop captures the value it was started
// with and compares it at every checkpoint; advancing the epoch makes all
// older loops exit.
type epoch struct {
	v atomic.Int64
}

func (e *epoch) current() int64 { return e.v.Load() }

func (e *epoch) advance() int64 { return e.v.Add(1) }

func (e *epoch) is(gen int64) bool { return e.v.Load() == gen }
