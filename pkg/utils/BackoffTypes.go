package utils

import "time"


type ExpBackoffOpts struct {
	MaxRetries *int
	TimeoutInMilliseconds int
}

type ExponentialBackoffStrat [T any] struct {
	maxRetries *int
	initialTimeout time.Duration
}
