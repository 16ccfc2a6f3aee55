package replica

import "time"

// Clock stamps changes with their creation time and uploads with their
// upload time.
type Clock interface {
	Now() int64
}

// WallClock returns Unix milliseconds.
type WallClock struct{}

// Now returns the current time in Unix milliseconds.
func (WallClock) Now() int64 {
	return time.Now().UnixMilli()
}
