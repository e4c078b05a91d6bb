package ledger

import "time"

// Clock supplies unix timestamps in seconds.
type Clock interface {
	Now() int64
}

type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// FixedClock always reports the same instant.
type FixedClock int64

func (c FixedClock) Now() int64 { return int64(c) }
