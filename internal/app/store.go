package app

import (
	"context"
	"time"

	"engagement-service/internal/domain"
)

// EventRepository persists event definitions. DeleteEvent removes the event's
// questions, registrations and submissions with it.
type EventRepository interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	// UpdateEvent applies patch and stamps updatedAt. Type and owner never change.
	UpdateEvent(ctx context.Context, id string, patch domain.EventPatch, updatedAt time.Time) (domain.Event, error)
	// PublishEvent flips a draft to published. It is a no-op on a published event.
	PublishEvent(ctx context.Context, id string, at time.Time) (domain.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEventsByOwner(ctx context.Context, ownerID string) ([]domain.Event, error)
	ListPublishedEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error)
}

// QuestionRepository persists quiz questions ordered by position.
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q domain.Question) error
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	UpdateQuestion(ctx context.Context, q domain.Question) error
	// DeleteQuestion removes the question and closes the gap in positions.
	DeleteQuestion(ctx context.Context, id string) error
	// ListQuestions returns the event's questions sorted by position.
	ListQuestions(ctx context.Context, eventID string) ([]domain.Question, error)
	// ReorderQuestions assigns positions 0..n-1 following orderedIDs.
	ReorderQuestions(ctx context.Context, eventID string, orderedIDs []string) error
}

// QuizSubmissionRepository persists quiz attempts.
type QuizSubmissionRepository interface {
	// CreateQuizSubmission fails with domain.ErrConflict when the pair already has one.
	CreateQuizSubmission(ctx context.Context, s domain.QuizSubmission) error
	GetQuizSubmission(ctx context.Context, id string) (domain.QuizSubmission, error)
	FindQuizSubmission(ctx context.Context, eventID, participantID string) (domain.QuizSubmission, error)
	ListQuizSubmissions(ctx context.Context, eventID string) ([]domain.QuizSubmission, error)
	// SaveQuizAnswer sets one answer key while the submission is open. It reports
	// domain.ErrAlreadySubmitted when the submission was closed in the meantime.
	SaveQuizAnswer(ctx context.Context, id, questionID, answer string) error
	// CloseQuizSubmission writes the result only if the submission is still open
	// and reports whether this call applied it.
	CloseQuizSubmission(ctx context.Context, id string, result domain.QuizResult) (bool, error)
	// GradeQuizSubmission writes the grade only if none was recorded yet.
	GradeQuizSubmission(ctx context.Context, id string, grade domain.Grade) (bool, error)
}

// AssignmentRepository persists accepted assignment files.
type AssignmentRepository interface {
	// CreateAssignmentSubmission fails with domain.ErrConflict when the pair already has one.
	CreateAssignmentSubmission(ctx context.Context, s domain.AssignmentSubmission) error
	GetAssignmentSubmission(ctx context.Context, id string) (domain.AssignmentSubmission, error)
	FindAssignmentSubmission(ctx context.Context, eventID, participantID string) (domain.AssignmentSubmission, error)
	ListAssignmentSubmissions(ctx context.Context, eventID string) ([]domain.AssignmentSubmission, error)
	GradeAssignmentSubmission(ctx context.Context, id string, grade domain.Grade) (bool, error)
}

// RegistrationRepository persists webinar signups.
type RegistrationRepository interface {
	// CreateRegistration fails with domain.ErrConflict when the pair already has one.
	CreateRegistration(ctx context.Context, r domain.Registration) error
	GetRegistration(ctx context.Context, id string) (domain.Registration, error)
	FindRegistration(ctx context.Context, eventID, participantID string) (domain.Registration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]domain.Registration, error)
	MarkAttended(ctx context.Context, id string, at time.Time) (domain.Registration, error)
}

// Store is the full persistence surface; it is the sole source of truth.
type Store interface {
	EventRepository
	QuestionRepository
	QuizSubmissionRepository
	AssignmentRepository
	RegistrationRepository
}

// ObjectStore keeps uploaded file bytes.
type ObjectStore interface {
	// Put stores data under a key derived from pathHint and returns a locator.
	Put(ctx context.Context, pathHint string, data []byte) (string, error)
	// Get returns the bytes for locator or domain.ErrNotFound.
	Get(ctx context.Context, locator string) ([]byte, error)
}

// Locker serializes work on one key (a submission or an event/participant pair)
// across goroutines and, for distributed implementations, across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
