package app

import (
	"context"

	"engagement-service/internal/clock"
	"engagement-service/internal/domain"
	"engagement-service/internal/logger"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type registrationStore interface {
	EventRepository
	RegistrationRepository
}

// RegistrationService signs participants up for webinars.
type RegistrationService struct {
	store registrationStore
	clock clock.Clock
	log   *logger.Logger
}

func NewRegistrationService(store registrationStore, clk clock.Clock, log *logger.Logger) *RegistrationService {
	return &RegistrationService{store: store, clock: clk, log: log.With("component", "registrations")}
}

// Register signs the participant up. An existing registration is returned with
// domain.ErrAlreadyRegistered. Ended webinars take no new registrations.
func (s *RegistrationService) Register(ctx context.Context, eventID, participantID string) (domain.Registration, error) {
	if participantID == "" {
		return domain.Registration{}, errors.Wrap(domain.ErrValidation, "participant is required")
	}
	event, err := publishedEvent(ctx, s.store, eventID, domain.EventTypeWebinar)
	if err != nil {
		return domain.Registration{}, err
	}

	existing, err := s.store.FindRegistration(ctx, eventID, participantID)
	if err == nil {
		return existing, domain.ErrAlreadyRegistered
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Registration{}, err
	}

	now := s.clock.Now()
	if domain.WebinarStatusAt(event, now) == domain.WebinarEnded {
		return domain.Registration{}, errors.Wrapf(domain.ErrEventClosed, "webinar %s has ended", eventID)
	}

	reg := domain.Registration{
		ID:            uuid.NewString(),
		EventID:       eventID,
		ParticipantID: participantID,
		RegisteredAt:  now,
		Status:        domain.RegistrationRegistered,
	}
	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			existing, findErr := s.store.FindRegistration(ctx, eventID, participantID)
			if findErr != nil {
				return domain.Registration{}, findErr
			}
			return existing, domain.ErrAlreadyRegistered
		}
		return domain.Registration{}, errors.Wrap(err, "create registration")
	}
	s.log.Info("registered for webinar", "event_id", eventID, "registration_id", reg.ID)
	return reg, nil
}

// Status derives the webinar's visible status from the clock.
func (s *RegistrationService) Status(ctx context.Context, eventID string) (domain.WebinarStatus, error) {
	event, err := publishedEvent(ctx, s.store, eventID, domain.EventTypeWebinar)
	if err != nil {
		return "", err
	}
	return domain.WebinarStatusAt(event, s.clock.Now()), nil
}

// Mine returns the participant's registration for a webinar.
func (s *RegistrationService) Mine(ctx context.Context, eventID, participantID string) (domain.Registration, error) {
	return s.store.FindRegistration(ctx, eventID, participantID)
}

// ListForEvent returns all registrations of one of the owner's webinars.
func (s *RegistrationService) ListForEvent(ctx context.Context, ownerID, eventID string) ([]domain.Registration, error) {
	if _, err := ownedEvent(ctx, s.store, ownerID, eventID); err != nil {
		return nil, err
	}
	return s.store.ListRegistrations(ctx, eventID)
}

// MarkAttended records attendance on behalf of the owner. Repeating it keeps the
// first attendance time.
func (s *RegistrationService) MarkAttended(ctx context.Context, ownerID, registrationID string) (domain.Registration, error) {
	reg, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return domain.Registration{}, err
	}
	if _, err := ownedEvent(ctx, s.store, ownerID, reg.EventID); err != nil {
		return domain.Registration{}, errors.Wrapf(domain.ErrNotFound, "registration %s", registrationID)
	}
	if reg.Status == domain.RegistrationAttended {
		return reg, nil
	}
	return s.store.MarkAttended(ctx, registrationID, s.clock.Now())
}
