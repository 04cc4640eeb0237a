package utils

import "time"

// NowMS returns the current time as epoch milliseconds, the unit all
// timestamps in the system are kept in.
func NowMS() int64 {
	return time.Now().UnixMilli()
}
