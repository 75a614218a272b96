package availabilityservice

import (
	"context"
	"fmt"
	"time"

	"github.com/meetd/meetd/agent/modules/logger"
	"github.com/meetd/meetd/agent/repositories/userrepo"
	"github.com/meetd/meetd/agent/types"
	"github.com/meetd/meetd/availability"
	"github.com/meetd/meetd/calendar"
)

// CalendarFactory builds a per-user calendar provider from the user's
// stored refresh token.
type CalendarFactory func(refreshToken string) calendar.Provider

type QueryRequest struct {
	WithEmail       string
	Window          availability.Window
	DurationMinutes int
}

type AvailabilityService interface {
	// Query returns ranked mutual slots between the requesting user and
	// the counterparty within the window.
	Query(ctx context.Context, user *types.User, req QueryRequest) ([]availability.AvailableSlot, error)
}

type BaseAvailabilityService struct {
	userRepo  userrepo.UserRepo
	calendars CalendarFactory
	logger    logger.Logger
}

func NewAvailabilityService(userRepo userrepo.UserRepo, calendars CalendarFactory, log logger.Logger) *BaseAvailabilityService {
	return &BaseAvailabilityService{
		userRepo:  userRepo,
		calendars: calendars,
		logger:    log,
	}
}

func (s *BaseAvailabilityService) Query(ctx context.Context, user *types.User, req QueryRequest) ([]availability.AvailableSlot, error) {
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", req.DurationMinutes)
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute

	// The requester's calendar is authoritative: without it the answer
	// would claim free time we cannot vouch for.
	ownBusy, err := s.busyPeriods(ctx, user, req.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to get your calendar: %w", err)
	}

	// The counterparty's calendar is best-effort. Unknown users and
	// provider failures degrade to an empty busy list rather than
	// failing the whole query.
	var theirBusy []availability.BusyPeriod
	if counterpart, err := s.userRepo.GetByEmail(req.WithEmail); err == nil {
		theirBusy, err = s.busyPeriods(ctx, counterpart, req.Window)
		if err != nil {
			s.logger.Log("failed to get calendar for %s, treating as free: %v", req.WithEmail, err)
			theirBusy = nil
		}
	}

	slots := availability.IntersectAvailability(ownBusy, theirBusy, req.Window, duration)
	return availability.ScoreAndRank(slots, time.Now()), nil
}

func (s *BaseAvailabilityService) busyPeriods(ctx context.Context, user *types.User, window availability.Window) ([]availability.BusyPeriod, error) {
	if user.GoogleRefreshToken == "" {
		return nil, nil
	}
	return s.calendars(user.GoogleRefreshToken).GetBusyPeriods(ctx, window.Start, window.End)
}
