package domain

import "github.com/cockroachdb/errors"

var (
	// ErrNotFound covers unknown ids and ids outside the caller's scope alike.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed input or field combinations.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyStarted accompanies the existing quiz submission on a repeated start.
	ErrAlreadyStarted = errors.New("quiz already started")
	// ErrAlreadyRegistered accompanies the existing registration.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrAlreadySubmitted is returned when a submission is closed to further input.
	ErrAlreadySubmitted = errors.New("already submitted")
	// ErrUnsupportedType rejects an assignment file extension.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooLarge rejects an assignment file over the size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrInvalidScore is returned when a grade falls outside [0, maxScore].
	ErrInvalidScore = errors.New("invalid score")
	// ErrInvalidQuestion is returned when an answer names a question outside the quiz.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrAlreadyGraded is returned on a second grade of the same submission.
	ErrAlreadyGraded = errors.New("already graded")
	// ErrEventClosed is returned when an event is outside its availability window.
	ErrEventClosed = errors.New("event not open")
	// ErrDeadlinePassed rejects an assignment after its due date.
	ErrDeadlinePassed = errors.New("deadline passed")
	// ErrConflict is raised by stores on a uniqueness violation.
	ErrConflict = errors.New("conflict")
)

// IsSoft reports whether err is one of the "success with existing record" kinds.
func IsSoft(err error) bool {
	return errors.IsAny(err, ErrAlreadyStarted, ErrAlreadyRegistered, ErrAlreadySubmitted)
}

// IsRejection reports whether err is a policy or input rejection that callers
// may show verbatim, as opposed to an unexpected internal failure.
func IsRejection(err error) bool {
	return errors.IsAny(err,
		ErrNotFound, ErrValidation, ErrAlreadyStarted, ErrAlreadyRegistered,
		ErrAlreadySubmitted, ErrUnsupportedType, ErrTooLarge, ErrInvalidScore,
		ErrInvalidQuestion, ErrAlreadyGraded, ErrEventClosed, ErrDeadlinePassed,
	)
}
