package scheduler

import "time"

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
