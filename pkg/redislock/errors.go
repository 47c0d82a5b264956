package redislock

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrNotAcquired                  = errors.New("lock is held by another process")
	ErrNotHeld                      = errors.New("lock is not held by this process")
)
