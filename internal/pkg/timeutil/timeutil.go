package timeutil

import "time"

func NowUnix() int64 {
	return time.Now().Unix()
}

// NowMilli is used where rows created within the same second must still
// order deterministically.
func NowMilli() int64 {
	return time.Now().UnixMilli()
}
