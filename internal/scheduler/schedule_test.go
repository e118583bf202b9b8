package scheduler

import (
	"testing"
	"time"
)

func TestEveryNext(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 17, 42, 0, time.UTC)
	got := every(30 * time.Minute).next(base)
	want := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("every(30m).next = %v, want %v", got, want)
	}
	// On an exact boundary the next slot is a full interval later.
	got = every(30 * time.Minute).next(want)
	if !got.Equal(want.Add(30 * time.Minute)) {
		t.Errorf("every(30m) on boundary = %v, want %v", got, want.Add(30*time.Minute))
	}
}

func TestHourlyAtNext(t *testing.T) {
	cases := []struct {
		name   string
		minute int
		after  time.Time
		want   time.Time
	}{
		{
			name:   "before the minute",
			minute: 15,
			after:  time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC),
			want:   time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC),
		},
		{
			name:   "after the minute rolls to next hour",
			minute: 15,
			after:  time.Date(2026, 3, 10, 9, 20, 0, 0, time.UTC),
			want:   time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC),
		},
		{
			name:   "exactly on the minute rolls forward",
			minute: 0,
			after:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
			want:   time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := hourlyAt(tc.minute).next(tc.after)
			if !got.Equal(tc.want) {
				t.Errorf("next(%v) = %v, want %v", tc.after, got, tc.want)
			}
		})
	}
}

func TestDailyAtNext(t *testing.T) {
	sched := dailyAt{2, 0}
	got := sched.next(time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC))
	want := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("same-day slot: got %v, want %v", got, want)
	}
	got = sched.next(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
	want = time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("next-day slot: got %v, want %v", got, want)
	}
}

func TestWeeklyAtNext(t *testing.T) {
	// 2026-03-10 is a Tuesday.
	sched := weeklyAt{time.Sunday, 1, 0}
	got := sched.next(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	want := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got.Weekday() != time.Sunday {
		t.Errorf("expected a Sunday, got %v", got.Weekday())
	}
	// Running exactly at the slot schedules a week out.
	got = sched.next(want)
	if !got.Equal(want.AddDate(0, 0, 7)) {
		t.Errorf("on-slot: got %v, want %v", got, want.AddDate(0, 0, 7))
	}
}
