// Package calendar abstracts the external calendar collaborator. The
// core treats it as a capability pair: read busy periods, create an
// event. Additional providers are added implementations of Provider,
// not subclasses of the Google one.
package calendar

import (
	"context"
	"time"

	"github.com/meetd/meetd/availability"
)

// Provider is the calendar capability set the scheduling core needs.
type Provider interface {
	GetBusyPeriods(ctx context.Context, start, end time.Time) ([]availability.BusyPeriod, error)
	CreateEvent(ctx context.Context, title, description string, start, end time.Time, attendeeEmail string) (*CreatedEvent, error)
}

// CreatedEvent is the result of CreateEvent. HTMLLink may be empty if
// the provider does not hand one back.
type CreatedEvent struct {
	ID       string
	HTMLLink string
}
