package scheduler

import "time"

// schedule computes the next run time strictly after a given instant. All
// schedules evaluate in UTC.
type schedule interface {
	next(after time.Time) time.Time
}

// every runs at a fixed interval.
type every time.Duration

func (e every) next(after time.Time) time.Time {
	d := time.Duration(e)
	return after.UTC().Truncate(d).Add(d)
}

// hourlyAt runs once per hour at a fixed minute.
type hourlyAt int

func (m hourlyAt) next(after time.Time) time.Time {
	t := after.UTC()
	n := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), int(m), 0, 0, time.UTC)
	if !n.After(t) {
		n = n.Add(time.Hour)
	}
	return n
}

// dailyAt runs once per day at a fixed time.
type dailyAt struct {
	hour, minute int
}

func (d dailyAt) next(after time.Time) time.Time {
	t := after.UTC()
	n := time.Date(t.Year(), t.Month(), t.Day(), d.hour, d.minute, 0, 0, time.UTC)
	if !n.After(t) {
		n = n.AddDate(0, 0, 1)
	}
	return n
}

// weeklyAt runs once per week on a fixed weekday and time.
type weeklyAt struct {
	day          time.Weekday
	hour, minute int
}

func (w weeklyAt) next(after time.Time) time.Time {
	t := after.UTC()
	n := time.Date(t.Year(), t.Month(), t.Day(), w.hour, w.minute, 0, 0, time.UTC)
	for n.Weekday() != w.day || !n.After(t) {
		n = n.AddDate(0, 0, 1)
	}
	return n
}
