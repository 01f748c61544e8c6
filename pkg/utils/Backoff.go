package utils

import "time"

import "github.com/cockroachdb/errors"


//=========================================== Exponential Backoff


/*
	initialize an exponential backoff strategy

	the strategy retries an operation up to MaxRetries times, doubling the
	wait period between attempts starting from TimeoutInMilliseconds. a nil
	MaxRetries retries indefinitely.
*/

func NewExponentialBackoffStrat [T any](opts ExpBackoffOpts) *ExponentialBackoffStrat[T] {
	return &ExponentialBackoffStrat[T]{
		maxRetries: opts.MaxRetries,
		initialTimeout: time.Duration(opts.TimeoutInMilliseconds) * time.Millisecond,
	}
}

/*
	Perform Backoff:
		1.) perform the operation, on success return the result immediately
		2.) on failure, wait out the current timeout period and double it
		3.) once max retries is exhausted, return the last error wrapped
*/

func (expStrat *ExponentialBackoffStrat[T]) PerformBackoff(operation func() (T, error)) (T, error) {
	timeout := expStrat.initialTimeout
	retries := 0

	for {
		res, err := operation()
		if err == nil { return res, nil }

		if expStrat.maxRetries != nil && retries >= *expStrat.maxRetries {
			return GetZero[T](), errors.Wrap(err, "max retries exceeded")
		}

		time.Sleep(timeout)

		timeout = timeout * 2
		retries++
	}
}
