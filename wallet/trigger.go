package wallet

import (
	"fmt"
	"time"
)

// RecurringInterval names how often a recurring transfer repeats.
type RecurringInterval string

const (
	IntervalDaily   RecurringInterval = "daily"
	IntervalWeekly  RecurringInterval = "weekly"
	IntervalMonthly RecurringInterval = "monthly"
	IntervalYearly  RecurringInterval = "yearly"
	// IntervalTest fires every minute; meant for development.
	IntervalTest   RecurringInterval = "test"
	IntervalCustom RecurringInterval = "custom"
)

const testIntervalPeriod = 60 * time.Second

// MaxCustomDays bounds the custom interval to ten years.
const MaxCustomDays = 3650

// Trigger describes when a job fires. Exactly one of Every and Spec is set:
// Every repeats a fixed period from the job start, Spec is a standard
// five-field cron expression evaluated no earlier than the job start.
type Trigger struct {
	Every time.Duration
	Spec  string
}

func (t Trigger) String() string {
	if t.Spec != "" {
		return "cron(" + t.Spec + ")"
	}
	return "every(" + t.Every.String() + ")"
}

// TriggerFor maps an interval to its trigger. The table is fixed; anything
// outside it is an error rather than a job that never fires.
func TriggerFor(interval RecurringInterval, customDays int) (Trigger, error) {
	switch interval {
	case IntervalDaily:
		return Trigger{Every: 24 * time.Hour}, nil
	case IntervalWeekly:
		return Trigger{Every: 7 * 24 * time.Hour}, nil
	case IntervalMonthly:
		return Trigger{Spec: "0 0 1 * *"}, nil
	case IntervalYearly:
		return Trigger{Spec: "0 0 1 1 *"}, nil
	case IntervalTest:
		return Trigger{Every: testIntervalPeriod}, nil
	case IntervalCustom:
		if customDays < 1 || customDays > MaxCustomDays {
			return Trigger{}, &InvalidIntervalError{Interval: interval, CustomDays: customDays}
		}
		return Trigger{Every: time.Duration(customDays) * 24 * time.Hour}, nil
	}
	return Trigger{}, &InvalidIntervalError{Interval: interval}
}

// JobID is the scheduler key for a recurring entry.
func JobID(recurringID int64) string {
	return fmt.Sprintf("recurring_transaction_%d", recurringID)
}
