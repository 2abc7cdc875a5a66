package handlers

import "net/http"

// Register mounts every booking-service route on mux. public is applied to the unauthenticated
// booking routes only (rate limiting).
func Register(mux *http.ServeMux, availability *AvailabilityHandler, bookings *BookingHandler, schedule *ScheduleHandler, public func(http.Handler) http.Handler) {
	if public == nil {
		public = func(h http.Handler) http.Handler { return h }
	}
	mux.Handle("/api/v1/public/slots", public(http.HandlerFunc(availability.Slots)))
	mux.Handle("/api/v1/public/days", public(http.HandlerFunc(availability.Days)))
	mux.Handle("/api/v1/public/book", public(http.HandlerFunc(bookings.Create)))

	mux.HandleFunc("/api/v1/bookings", bookings.List)
	mux.HandleFunc("/api/v1/bookings/item", bookings.Get)
	mux.HandleFunc("/api/v1/bookings/cancel", bookings.Cancel)
	mux.HandleFunc("/api/v1/bookings/complete", bookings.Complete)
	mux.HandleFunc("/api/v1/bookings/no-show", bookings.NoShow)

	mux.HandleFunc("/api/v1/rules", schedule.Rules)
	mux.HandleFunc("/api/v1/rules/item", schedule.RuleItem)
	mux.HandleFunc("/api/v1/exceptions", schedule.Exceptions)
	mux.HandleFunc("/api/v1/exceptions/item", schedule.ExceptionItem)
}
