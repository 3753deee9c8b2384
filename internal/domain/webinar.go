package domain

import "time"

// WebinarStatus is derived from wall-clock time and never stored.
type WebinarStatus string

const (
	WebinarUpcoming WebinarStatus = "upcoming"
	WebinarLive     WebinarStatus = "live"
	WebinarEnded    WebinarStatus = "ended"
)

// WebinarStatusAt derives the visible status of a webinar at now. Both bounds are
// inclusive for Live; an event without an end time ends right after it starts.
// An event without a start time is always Upcoming.
func WebinarStatusAt(e Event, now time.Time) WebinarStatus {
	if e.StartsAt == nil {
		return WebinarUpcoming
	}
	end := *e.StartsAt
	if e.EndsAt != nil {
		end = *e.EndsAt
	}
	switch {
	case now.After(end):
		return WebinarEnded
	case now.Before(*e.StartsAt):
		return WebinarUpcoming
	default:
		return WebinarLive
	}
}
