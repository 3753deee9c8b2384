package app

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"engagement-service/internal/clock"
	"engagement-service/internal/domain"
	"engagement-service/internal/logger"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type assignmentStore interface {
	EventRepository
	AssignmentRepository
}

// AssignmentDefaults apply to assignment events that leave the limits unset.
type AssignmentDefaults struct {
	AllowedExtensions []string
	MaxFileSizeMB     int
}

// DefaultAssignmentDefaults returns {pdf, doc, docx} and 10 MB.
func DefaultAssignmentDefaults() AssignmentDefaults {
	return AssignmentDefaults{
		AllowedExtensions: append([]string(nil), domain.DefaultAllowedExtensions...),
		MaxFileSizeMB:     domain.DefaultMaxFileSizeMB,
	}
}

// AssignmentService accepts exactly one file per participant per assignment.
type AssignmentService struct {
	store    assignmentStore
	objects  ObjectStore
	locks    Locker
	clock    clock.Clock
	log      *logger.Logger
	defaults AssignmentDefaults
}

func NewAssignmentService(store assignmentStore, objects ObjectStore, locks Locker, clk clock.Clock, log *logger.Logger, defaults AssignmentDefaults) *AssignmentService {
	if len(defaults.AllowedExtensions) == 0 {
		defaults.AllowedExtensions = DefaultAssignmentDefaults().AllowedExtensions
	}
	defaults.AllowedExtensions = domain.NormalizeExtensions(defaults.AllowedExtensions)
	if defaults.MaxFileSizeMB <= 0 {
		defaults.MaxFileSizeMB = domain.DefaultMaxFileSizeMB
	}
	return &AssignmentService{
		store:    store,
		objects:  objects,
		locks:    locks,
		clock:    clk,
		log:      log.With("component", "assignments"),
		defaults: defaults,
	}
}

// Submit validates and stores a file. Checks run in a fixed order and all of
// them happen before anything is written: extension, size, an existing
// submission (returned with domain.ErrAlreadySubmitted), then the due date.
// The file is stored before its record so a record never points at nothing; a
// failed record write leaves an unreferenced object behind.
func (s *AssignmentService) Submit(ctx context.Context, eventID, participantID string, file domain.Upload) (domain.AssignmentSubmission, error) {
	if participantID == "" {
		return domain.AssignmentSubmission{}, errors.Wrap(domain.ErrValidation, "participant is required")
	}
	event, err := publishedEvent(ctx, s.store, eventID, domain.EventTypeAssignment)
	if err != nil {
		return domain.AssignmentSubmission{}, err
	}

	filename := path.Base(filepath.ToSlash(strings.TrimSpace(file.Filename)))
	if filename == "" || filename == "." || filename == "/" {
		return domain.AssignmentSubmission{}, errors.Wrap(domain.ErrValidation, "filename is required")
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	allowed := s.allowedExtensions(event)
	if !contains(allowed, ext) {
		return domain.AssignmentSubmission{}, errors.Wrapf(domain.ErrUnsupportedType,
			"extension %q is not accepted, allowed: %s", ext, strings.Join(allowed, ", "))
	}
	maxMB := s.maxFileSizeMB(event)
	size := int64(len(file.Data))
	if size > int64(maxMB)*1024*1024 {
		return domain.AssignmentSubmission{}, errors.Wrapf(domain.ErrTooLarge,
			"file is %d bytes, limit is %d MB", size, maxMB)
	}

	unlock, err := s.locks.Lock(ctx, "assignment:"+eventID+":"+participantID)
	if err != nil {
		return domain.AssignmentSubmission{}, err
	}
	defer unlock()

	existing, err := s.store.FindAssignmentSubmission(ctx, eventID, participantID)
	if err == nil {
		return existing, errors.Wrapf(domain.ErrAlreadySubmitted, "file %q was accepted at %s", existing.Filename, existing.SubmittedAt.Format(time.RFC3339))
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.AssignmentSubmission{}, err
	}

	now := s.clock.Now()
	if event.DueAt != nil && now.After(*event.DueAt) {
		return domain.AssignmentSubmission{}, errors.Wrapf(domain.ErrDeadlinePassed, "submissions closed at %s", event.DueAt.Format(time.RFC3339))
	}

	id := uuid.NewString()
	key := "assignments/" + eventID + "/" + participantID + "/" + id + "." + ext
	locator, err := s.objects.Put(ctx, key, file.Data)
	if err != nil {
		return domain.AssignmentSubmission{}, errors.Wrap(err, "store assignment file")
	}

	maxScore := domain.DefaultAssignmentMaxScore
	if event.MaxScore != nil {
		maxScore = *event.MaxScore
	}
	sub := domain.AssignmentSubmission{
		ID:            id,
		EventID:       eventID,
		ParticipantID: participantID,
		FileLocator:   locator,
		Filename:      filename,
		SizeBytes:     size,
		SubmittedAt:   now,
		MaxScore:      maxScore,
	}
	if err := s.store.CreateAssignmentSubmission(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			existing, findErr := s.store.FindAssignmentSubmission(ctx, eventID, participantID)
			if findErr != nil {
				return domain.AssignmentSubmission{}, findErr
			}
			s.log.Warn("assignment raced, object left unreferenced", "event_id", eventID, "locator", locator)
			return existing, errors.Wrapf(domain.ErrAlreadySubmitted, "file %q was accepted at %s", existing.Filename, existing.SubmittedAt.Format(time.RFC3339))
		}
		s.log.Error("assignment record failed, object left unreferenced", "event_id", eventID, "locator", locator, "error", err)
		return domain.AssignmentSubmission{}, errors.Wrap(err, "create assignment submission")
	}
	s.log.Info("assignment accepted", "event_id", eventID, "submission_id", id, "size_bytes", size)
	return sub, nil
}

// Get returns a submission to its participant or to the event owner.
func (s *AssignmentService) Get(ctx context.Context, callerID, submissionID string) (domain.AssignmentSubmission, error) {
	sub, err := s.store.GetAssignmentSubmission(ctx, submissionID)
	if err != nil {
		return domain.AssignmentSubmission{}, err
	}
	if sub.ParticipantID == callerID {
		return sub, nil
	}
	if _, err := ownedEvent(ctx, s.store, callerID, sub.EventID); err != nil {
		return domain.AssignmentSubmission{}, errors.Wrapf(domain.ErrNotFound, "assignment submission %s", submissionID)
	}
	return sub, nil
}

// Mine returns the participant's own submission for an assignment.
func (s *AssignmentService) Mine(ctx context.Context, eventID, participantID string) (domain.AssignmentSubmission, error) {
	return s.store.FindAssignmentSubmission(ctx, eventID, participantID)
}

// ListForEvent returns every submission to one of the owner's assignments.
func (s *AssignmentService) ListForEvent(ctx context.Context, ownerID, eventID string) ([]domain.AssignmentSubmission, error) {
	if _, err := ownedEvent(ctx, s.store, ownerID, eventID); err != nil {
		return nil, err
	}
	return s.store.ListAssignmentSubmissions(ctx, eventID)
}

// Download returns the stored bytes of a submission along with its filename.
func (s *AssignmentService) Download(ctx context.Context, callerID, submissionID string) ([]byte, string, error) {
	sub, err := s.Get(ctx, callerID, submissionID)
	if err != nil {
		return nil, "", err
	}
	data, err := s.objects.Get(ctx, sub.FileLocator)
	if err != nil {
		return nil, "", errors.Wrapf(err, "load file for submission %s", submissionID)
	}
	return data, sub.Filename, nil
}

func (s *AssignmentService) allowedExtensions(event domain.Event) []string {
	if len(event.AllowedExtensions) > 0 {
		return event.AllowedExtensions
	}
	return s.defaults.AllowedExtensions
}

func (s *AssignmentService) maxFileSizeMB(event domain.Event) int {
	if event.MaxFileSizeMB != nil && *event.MaxFileSizeMB > 0 {
		return *event.MaxFileSizeMB
	}
	return s.defaults.MaxFileSizeMB
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
