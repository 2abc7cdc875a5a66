package outbox

import (
	"encoding/json"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
)

const (
	EventBookingCreated   = "booking.created.v1"
	EventBookingCancelled = "booking.cancelled.v1"
	EventBookingCompleted = "booking.completed.v1"
	EventBookingNoShow    = "booking.no_show.v1"
	EventScheduleChanged  = "schedule.changed.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type BookingPayload struct {
	BookingID    string    `json:"booking_id"`
	ProviderID   string    `json:"provider_id"`
	ClientID     string    `json:"client_id"`
	ServiceID    string    `json:"service_id,omitempty"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	Status       string    `json:"status"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type SchedulePayload struct {
	ProviderID string    `json:"provider_id"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id,omitempty"`
	Action     string    `json:"action"`
	Date       string    `json:"date,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BookingEventType maps a status reached by a booking to its lifecycle event.
func BookingEventType(status model.BookingStatus) string {
	switch status {
	case model.StatusCancelled:
		return EventBookingCancelled
	case model.StatusCompleted:
		return EventBookingCompleted
	case model.StatusNoShow:
		return EventBookingNoShow
	default:
		return EventBookingCreated
	}
}

func NewBookingEvent(b model.Booking, at time.Time) (Event, error) {
	payload, err := json.Marshal(BookingPayload{
		BookingID:    b.ID,
		ProviderID:   b.ProviderID,
		ClientID:     b.ClientID,
		ServiceID:    b.ServiceID,
		StartAt:      b.StartAt.UTC(),
		EndAt:        b.EndAt.UTC(),
		Status:       string(b.Status),
		CancelReason: b.CancelReason,
		OccurredAt:   at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     BookingEventType(b.Status),
		Payload:       payload,
	}, nil
}

// NewScheduleEvent keys schedule changes by provider so consumers see them in order.
func NewScheduleEvent(p SchedulePayload) (Event, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "provider_schedule",
		AggregateID:   p.ProviderID,
		EventType:     EventScheduleChanged,
		Payload:       payload,
	}, nil
}
