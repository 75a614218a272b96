package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// slotStep is the fixed emission step inside a free gap. Slots advance
// by this step regardless of the requested duration, so consecutive
// candidates may overlap; the oversampling gives callers several start
// times per gap to choose from.
const slotStep = 30 * time.Minute

// BusyPeriod is a half-open interval [Start, End) during which a party
// is unavailable.
type BusyPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Title string    `json:"title,omitempty"`
}

// TimeSlot is a candidate meeting interval, End > Start.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s TimeSlot) DurationMinutes() int64 {
	return int64(s.End.Sub(s.Start) / time.Minute)
}

func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Start.Before(other.End) && s.End.After(other.Start)
}

func (s TimeSlot) Contains(other TimeSlot) bool {
	return !s.Start.After(other.Start) && !s.End.Before(other.End)
}

// AvailableSlot is a scored candidate; Score is in [0, 1].
type AvailableSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Score float64   `json:"score"`
}

// Window bounds an availability query, half-open [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// ParseWindow parses "YYYY-MM-DD..YYYY-MM-DD" into a window spanning
// the first day's midnight to the last day's 23:59:59 UTC.
func ParseWindow(s string) (Window, error) {
	parts := strings.Split(s, "..")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("invalid window format %q, use YYYY-MM-DD..YYYY-MM-DD", s)
	}
	start, err := time.ParseInLocation("2006-01-02", parts[0], time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("failed to parse window start: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", parts[1], time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("failed to parse window end: %w", err)
	}
	return Window{
		Start: start,
		End:   end.Add(23*time.Hour + 59*time.Minute + 59*time.Second),
	}, nil
}

// FindAvailableSlots sweeps the window left to right and emits every
// duration-sized slot that fits in a gap between busy periods, stepped
// by 30 minutes. Overlapping and nested busy periods collapse via the
// max(cursor, busy.End) advance, no separate merge pass needed.
func FindAvailableSlots(busy []BusyPeriod, window Window, duration time.Duration) []TimeSlot {
	sorted := make([]BusyPeriod, len(busy))
	copy(sorted, busy)
	// Stable keeps the original order of equal starts deterministic.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var slots []TimeSlot
	cursor := window.Start

	for _, b := range sorted {
		if b.Start.After(cursor) {
			slots = append(slots, emitSlots(cursor, b.Start, duration)...)
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}

	slots = append(slots, emitSlots(cursor, window.End, duration)...)

	return slots
}

func emitSlots(gapStart, gapEnd time.Time, duration time.Duration) []TimeSlot {
	var slots []TimeSlot
	for start := gapStart; !start.Add(duration).After(gapEnd); start = start.Add(slotStep) {
		slots = append(slots, TimeSlot{Start: start, End: start.Add(duration)})
	}
	return slots
}

// IntersectAvailability unions both busy lists and defers to the same
// sweep: two parties are available only where neither is busy. Exact as
// long as each list is a valid calendar's interval set.
func IntersectAvailability(busyA, busyB []BusyPeriod, window Window, duration time.Duration) []TimeSlot {
	all := make([]BusyPeriod, 0, len(busyA)+len(busyB))
	all = append(all, busyA...)
	all = append(all, busyB...)
	return FindAvailableSlots(all, window, duration)
}

// ScoreSlot rates a slot in [0, 1]. This is a fixed documented
// heuristic; the check order and thresholds are part of the contract.
func ScoreSlot(slot TimeSlot, now time.Time) float64 {
	score := 0.5

	start := slot.Start.UTC()

	hour := start.Hour()
	if hour >= 9 && hour < 17 {
		score += 0.2
	} else if hour >= 8 && hour < 18 {
		score += 0.1
	}

	switch start.Weekday() {
	case time.Saturday, time.Sunday:
	default:
		score += 0.1
	}

	hoursUntil := int64(slot.Start.Sub(now) / time.Hour)
	if hoursUntil >= 24 && hoursUntil <= 72 {
		score += 0.1
	} else if hoursUntil >= 4 {
		score += 0.05
	}

	minute := start.Minute()
	if minute == 0 || minute == 30 {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// MaxSlots caps what availability queries return after scoring.
const MaxSlots = 20

// ScoreAndRank scores every slot at now, sorts descending by score with
// a deterministic tie order, and returns at most MaxSlots entries.
func ScoreAndRank(slots []TimeSlot, now time.Time) []AvailableSlot {
	scored := make([]AvailableSlot, 0, len(slots))
	for _, slot := range slots {
		scored = append(scored, AvailableSlot{
			Start: slot.Start,
			End:   slot.End,
			Score: ScoreSlot(slot, now),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > MaxSlots {
		scored = scored[:MaxSlots]
	}
	return scored
}
