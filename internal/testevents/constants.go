package testevents

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DrainPollInterval    = 200 * time.Millisecond
	PercentageMultiplier = 100
)

// Size of the generated catalogue per content type.
const catalogueSize = 5
