package availability_test

import (
	"testing"
	"time"

	"github.com/meetd/meetd/availability"

	"github.com/stretchr/testify/require"
)

func day(hour, minute int) time.Time {
	// Thursday.
	return time.Date(2026, 9, 3, hour, minute, 0, 0, time.UTC)
}

func TestFindAvailableSlotsAroundBusyBlock(t *testing.T) {
	req := require.New(t)

	window := availability.Window{Start: day(9, 0), End: day(17, 0)}
	busy := []availability.BusyPeriod{
		{Start: day(12, 0), End: day(14, 0), Title: "Lunch meeting"},
	}

	slots := availability.FindAvailableSlots(busy, window, 30*time.Minute)
	req.NotEmpty(slots)

	// First slot starts exactly at the window start.
	req.True(slots[0].Start.Equal(window.Start))

	busySlot := availability.TimeSlot{Start: day(12, 0), End: day(14, 0)}
	for _, slot := range slots {
		req.False(slot.Overlaps(busySlot), "slot %v overlaps the busy block", slot)
		req.False(slot.Start.Before(window.Start))
		req.False(slot.End.After(window.End))
	}

	// Gap before the busy block is 9:00-12:00: 30-minute slots stepped
	// by 30 minutes means 6 of them, last one ending exactly at 12:00.
	var before int
	for _, slot := range slots {
		if !slot.End.After(day(12, 0)) {
			before++
		}
	}
	req.Equal(6, before)
}

func TestFindAvailableSlotsOversampling(t *testing.T) {
	req := require.New(t)

	window := availability.Window{Start: day(9, 0), End: day(11, 0)}
	slots := availability.FindAvailableSlots(nil, window, time.Hour)

	// 60-minute slots advance by 30 minutes: 9:00, 9:30, 10:00.
	req.Len(slots, 3)
	req.True(slots[0].Start.Equal(day(9, 0)))
	req.True(slots[1].Start.Equal(day(9, 30)))
	req.True(slots[2].Start.Equal(day(10, 0)))
	req.True(slots[0].Overlaps(slots[1]))
}

func TestFindAvailableSlotsOverlappingBusy(t *testing.T) {
	req := require.New(t)

	window := availability.Window{Start: day(9, 0), End: day(13, 0)}
	busy := []availability.BusyPeriod{
		{Start: day(9, 0), End: day(11, 0)},
		{Start: day(10, 0), End: day(10, 30)}, // nested
		{Start: day(10, 30), End: day(11, 30)},
	}

	slots := availability.FindAvailableSlots(busy, window, 30*time.Minute)

	// Free time collapses to [11:30, 13:00).
	req.Len(slots, 3)
	req.True(slots[0].Start.Equal(day(11, 30)))
	for _, slot := range slots {
		req.False(slot.Start.Before(day(11, 30)))
	}
}

func TestIntersectAvailability(t *testing.T) {
	req := require.New(t)

	window := availability.Window{Start: day(9, 0), End: day(12, 0)}
	busyA := []availability.BusyPeriod{{Start: day(9, 0), End: day(10, 0)}}
	busyB := []availability.BusyPeriod{{Start: day(11, 0), End: day(12, 0)}}

	slots := availability.IntersectAvailability(busyA, busyB, window, time.Hour)

	// Only [10:00, 11:00) is free for both.
	req.Len(slots, 1)
	req.True(slots[0].Start.Equal(day(10, 0)))
	req.True(slots[0].End.Equal(day(11, 0)))
}

func TestScoreSlotPerfect(t *testing.T) {
	// Weekday 10:00 start, 48 hours out: 0.5+0.2+0.1+0.1+0.1 clamped to 1.0.
	slot := availability.TimeSlot{Start: day(10, 0), End: day(10, 30)}
	now := slot.Start.Add(-48 * time.Hour)

	require.InDelta(t, 1.0, availability.ScoreSlot(slot, now), 1e-9)
}

func TestScoreSlotWorst(t *testing.T) {
	// Saturday 03:00, one hour from now: base score only.
	start := time.Date(2026, 9, 5, 3, 0, 0, 0, time.UTC)
	require.Equal(t, time.Saturday, start.Weekday())

	slot := availability.TimeSlot{Start: start, End: start.Add(30 * time.Minute)}
	now := start.Add(-time.Hour)

	// Minute 0 still earns +0.1, so shift to an off-grid minute.
	slot.Start = slot.Start.Add(7 * time.Minute)
	slot.End = slot.End.Add(7 * time.Minute)

	require.InDelta(t, 0.5, availability.ScoreSlot(slot, now), 1e-9)
}

func TestScoreSlotEdgeHours(t *testing.T) {
	req := require.New(t)
	now := day(10, 0).Add(-48 * time.Hour)

	// 08:15 weekday: 0.5 + 0.1 (shoulder hours) + 0.1 (weekday) + 0.1 (48h out).
	slot := availability.TimeSlot{Start: day(8, 15), End: day(8, 45)}
	req.InDelta(0.8, availability.ScoreSlot(slot, now), 1e-9)

	// 17:00 weekday is outside [9,17) but inside [8,18).
	slot = availability.TimeSlot{Start: day(17, 0), End: day(17, 30)}
	req.InDelta(1.0-0.1, availability.ScoreSlot(slot, now), 1e-9)
}

func TestScoreSlotLeadTimeBands(t *testing.T) {
	req := require.New(t)
	slot := availability.TimeSlot{Start: day(10, 0), End: day(10, 30)}

	// 5 hours of lead time lands in the >=4h consolation band.
	req.InDelta(0.95, availability.ScoreSlot(slot, slot.Start.Add(-5*time.Hour)), 1e-9)

	// 1 hour of lead time earns nothing.
	req.InDelta(0.9, availability.ScoreSlot(slot, slot.Start.Add(-time.Hour)), 1e-9)

	// 73 hours is past the preferred band but still >=4.
	req.InDelta(0.95, availability.ScoreSlot(slot, slot.Start.Add(-73*time.Hour)), 1e-9)
}

func TestScoreAndRank(t *testing.T) {
	req := require.New(t)

	window := availability.Window{Start: day(0, 0), End: day(23, 0)}
	slots := availability.FindAvailableSlots(nil, window, 30*time.Minute)
	now := day(10, 0).Add(-48 * time.Hour)

	ranked := availability.ScoreAndRank(slots, now)
	req.Len(ranked, availability.MaxSlots)

	for i := 1; i < len(ranked); i++ {
		req.GreaterOrEqual(ranked[i-1].Score, ranked[i].Score)
	}

	// Deterministic: same input, same order.
	again := availability.ScoreAndRank(slots, now)
	req.Equal(ranked, again)
}

func TestParseWindow(t *testing.T) {
	req := require.New(t)

	w, err := availability.ParseWindow("2026-09-01..2026-09-07")
	req.NoError(err)
	req.True(w.Start.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))
	req.True(w.End.Equal(time.Date(2026, 9, 7, 23, 59, 59, 0, time.UTC)))

	_, err = availability.ParseWindow("2026-09-01")
	req.Error(err)

	_, err = availability.ParseWindow("yesterday..tomorrow")
	req.Error(err)
}
