package config

import "time"

const (
	// Cooldowns
	LocationCooldown         = 36 * time.Hour
	DefaultSubmitterCooldown = 24 * time.Hour

	// Sessions
	SessionTTL           = 5 * time.Minute
	SessionSweepInterval = time.Minute

	// Scheduler
	SchedulerInterval      = time.Hour
	DefaultRolloverWeekday = time.Sunday
	DefaultRolloverHour    = 20

	// Notes
	MaxNoteLength = 500
)
