package app

import (
	"context"
	"regexp"
	"strings"

	"engagement-service/internal/clock"
	"engagement-service/internal/domain"
	"engagement-service/internal/logger"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type eventStore interface {
	EventRepository
	QuestionRepository
}

// EventService authors events: create, edit, publish, delete, and the quiz
// question set. Every method is scoped to the owner; someone else's event is
// reported as not found.
type EventService struct {
	store eventStore
	locks Locker
	clock clock.Clock
	log   *logger.Logger
}

func NewEventService(store eventStore, locks Locker, clk clock.Clock, log *logger.Logger) *EventService {
	return &EventService{store: store, locks: locks, clock: clk, log: log.With("component", "events")}
}

// Create stores a new draft event.
func (s *EventService) Create(ctx context.Context, ownerID string, def domain.EventDefinition) (domain.Event, error) {
	if ownerID == "" {
		return domain.Event{}, errors.Wrap(domain.ErrValidation, "owner is required")
	}
	if !def.Type.Valid() {
		return domain.Event{}, errors.Wrapf(domain.ErrValidation, "unknown event type %q", def.Type)
	}
	if err := checkTypeFields(def.Type, def.EventFields); err != nil {
		return domain.Event{}, err
	}

	now := s.clock.Now()
	event := domain.Event{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		JobID:       strings.TrimSpace(def.JobID),
		Type:        def.Type,
		Status:      domain.EventStatusDraft,
		Title:       strings.TrimSpace(def.Title),
		Description: def.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	event.ApplyFields(def.EventFields)
	if err := validateEvent(event); err != nil {
		return domain.Event{}, err
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, errors.Wrap(err, "create event")
	}
	s.log.Info("event created", "event_id", event.ID, "type", event.Type, "owner_id", ownerID)
	return event, nil
}

// Update applies a partial change. Fields that do not belong to the event's
// fixed type are rejected.
func (s *EventService) Update(ctx context.Context, ownerID, id string, patch domain.EventPatch) (domain.Event, error) {
	current, err := ownedEvent(ctx, s.store, ownerID, id)
	if err != nil {
		return domain.Event{}, err
	}
	if err := checkTypeFields(current.Type, patch.EventFields); err != nil {
		return domain.Event{}, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if patch.AllowedExtensions != nil {
		patch.AllowedExtensions = domain.NormalizeExtensions(patch.AllowedExtensions)
	}

	merged := current
	merged.ApplyPatch(patch)
	if err := validateEvent(merged); err != nil {
		return domain.Event{}, err
	}

	updated, err := s.store.UpdateEvent(ctx, id, patch, s.clock.Now())
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "update event")
	}
	return updated, nil
}

// Publish makes the event discoverable. Publishing twice is a successful no-op.
func (s *EventService) Publish(ctx context.Context, ownerID, id string) (domain.Event, error) {
	current, err := ownedEvent(ctx, s.store, ownerID, id)
	if err != nil {
		return domain.Event{}, err
	}
	if current.IsPublished() {
		return current, nil
	}
	published, err := s.store.PublishEvent(ctx, id, s.clock.Now())
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "publish event")
	}
	s.log.Info("event published", "event_id", id)
	return published, nil
}

// Delete removes the event and everything hanging off it.
func (s *EventService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := ownedEvent(ctx, s.store, ownerID, id); err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return errors.Wrap(err, "delete event")
	}
	s.log.Info("event deleted", "event_id", id)
	return nil
}

// Get returns one of the owner's events, draft or published.
func (s *EventService) Get(ctx context.Context, ownerID, id string) (domain.Event, error) {
	return ownedEvent(ctx, s.store, ownerID, id)
}

// ListOwned returns every event the owner authored.
func (s *EventService) ListOwned(ctx context.Context, ownerID string) ([]domain.Event, error) {
	return s.store.ListEventsByOwner(ctx, ownerID)
}

// Discover is the participant-facing query. Drafts never appear.
func (s *EventService) Discover(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	return s.store.ListPublishedEvents(ctx, filter)
}

// GetPublished returns an event as a participant may see it.
func (s *EventService) GetPublished(ctx context.Context, id string) (domain.Event, error) {
	return publishedEvent(ctx, s.store, id, "")
}

// publishedEvent loads a published event, optionally of a given type. Drafts and
// mismatched types are indistinguishable from absence.
func publishedEvent(ctx context.Context, store EventRepository, id string, want domain.EventType) (domain.Event, error) {
	event, err := store.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if !event.IsPublished() || (want != "" && event.Type != want) {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return event, nil
}

// ownedEvent loads an event and checks ownership.
func ownedEvent(ctx context.Context, store EventRepository, ownerID, id string) (domain.Event, error) {
	event, err := store.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if event.OwnerID != ownerID {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return event, nil
}

func checkTypeFields(t domain.EventType, f domain.EventFields) error {
	var stray []string
	if t != domain.EventTypeWebinar {
		stray = appendIfSet(stray, "meetingUrl", f.MeetingURL != nil)
		stray = appendIfSet(stray, "platform", f.Platform != nil)
		stray = appendIfSet(stray, "startsAt", f.StartsAt != nil)
		stray = appendIfSet(stray, "endsAt", f.EndsAt != nil)
	}
	if t != domain.EventTypeQuiz {
		stray = appendIfSet(stray, "timeLimitMinutes", f.TimeLimitMinutes != nil)
		stray = appendIfSet(stray, "opensAt", f.OpensAt != nil)
		stray = appendIfSet(stray, "closesAt", f.ClosesAt != nil)
	}
	if t != domain.EventTypeAssignment {
		stray = appendIfSet(stray, "dueAt", f.DueAt != nil)
		stray = appendIfSet(stray, "maxFileSizeMb", f.MaxFileSizeMB != nil)
		stray = appendIfSet(stray, "allowedExtensions", f.AllowedExtensions != nil)
		stray = appendIfSet(stray, "maxScore", f.MaxScore != nil)
	}
	if len(stray) > 0 {
		return errors.Wrapf(domain.ErrValidation, "%s not applicable to %s events", strings.Join(stray, ", "), t)
	}
	return nil
}

func appendIfSet(list []string, name string, set bool) []string {
	if set {
		return append(list, name)
	}
	return list
}

var extensionPattern = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

func validateEvent(e domain.Event) error {
	if e.Title == "" {
		return errors.Wrap(domain.ErrValidation, "title is required")
	}
	switch e.Type {
	case domain.EventTypeWebinar:
		if e.StartsAt == nil {
			return errors.Wrap(domain.ErrValidation, "webinar startsAt is required")
		}
		if e.EndsAt != nil && e.EndsAt.Before(*e.StartsAt) {
			return errors.Wrap(domain.ErrValidation, "endsAt must not be before startsAt")
		}
	case domain.EventTypeQuiz:
		if e.TimeLimitMinutes != nil && *e.TimeLimitMinutes <= 0 {
			return errors.Wrapf(domain.ErrValidation, "timeLimitMinutes must be positive, got %d", *e.TimeLimitMinutes)
		}
		if e.OpensAt != nil && e.ClosesAt != nil && !e.ClosesAt.After(*e.OpensAt) {
			return errors.Wrap(domain.ErrValidation, "closesAt must be after opensAt")
		}
	case domain.EventTypeAssignment:
		if e.MaxFileSizeMB != nil && *e.MaxFileSizeMB <= 0 {
			return errors.Wrapf(domain.ErrValidation, "maxFileSizeMb must be positive, got %d", *e.MaxFileSizeMB)
		}
		if e.MaxScore != nil && *e.MaxScore <= 0 {
			return errors.Wrapf(domain.ErrValidation, "maxScore must be positive, got %d", *e.MaxScore)
		}
		if e.AllowedExtensions != nil {
			if len(e.AllowedExtensions) == 0 {
				return errors.Wrap(domain.ErrValidation, "allowedExtensions must not be empty")
			}
			for _, ext := range e.AllowedExtensions {
				if !extensionPattern.MatchString(ext) {
					return errors.Wrapf(domain.ErrValidation, "invalid extension %q", ext)
				}
			}
		}
	}
	return nil
}
