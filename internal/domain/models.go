package domain

import (
	"strings"
	"time"
)

// EventType selects which type-specific fields of an Event are meaningful.
type EventType string

const (
	EventTypeWebinar    EventType = "webinar"
	EventTypeQuiz       EventType = "quiz"
	EventTypeAssignment EventType = "assignment"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeWebinar, EventTypeQuiz, EventTypeAssignment:
		return true
	}
	return false
}

// EventStatus is the authoring lifecycle of an event. There is no way back to draft.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
)

// Assignment intake defaults applied when an event leaves the fields unset.
var DefaultAllowedExtensions = []string{"pdf", "doc", "docx"}

const (
	DefaultMaxFileSizeMB      = 10
	DefaultAssignmentMaxScore = 100
)

// Event is one authored unit of engagement: a webinar, a quiz or an assignment.
type Event struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"ownerId"`
	JobID       string      `json:"jobId"`
	Type        EventType   `json:"type"`
	Status      EventStatus `json:"status"`
	Title       string      `json:"title"`
	Description string      `json:"description"`

	// webinar
	MeetingURL string     `json:"meetingUrl,omitempty"`
	Platform   string     `json:"platform,omitempty"`
	StartsAt   *time.Time `json:"startsAt,omitempty"`
	EndsAt     *time.Time `json:"endsAt,omitempty"`

	// quiz
	TimeLimitMinutes *int       `json:"timeLimitMinutes,omitempty"`
	OpensAt          *time.Time `json:"opensAt,omitempty"`
	ClosesAt         *time.Time `json:"closesAt,omitempty"`

	// assignment
	DueAt             *time.Time `json:"dueAt,omitempty"`
	MaxFileSizeMB     *int       `json:"maxFileSizeMb,omitempty"`
	AllowedExtensions []string   `json:"allowedExtensions,omitempty"`
	MaxScore          *int       `json:"maxScore,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// IsPublished reports whether participants may discover the event.
func (e Event) IsPublished() bool {
	return e.Status == EventStatusPublished
}

// EventDefinition is the author-supplied input for a new event.
type EventDefinition struct {
	JobID       string    `json:"jobId"`
	Type        EventType `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EventFields
}

// EventFields carries the type-specific attributes. A field that does not belong
// to the event's type must be left nil.
type EventFields struct {
	MeetingURL *string    `json:"meetingUrl,omitempty"`
	Platform   *string    `json:"platform,omitempty"`
	StartsAt   *time.Time `json:"startsAt,omitempty"`
	EndsAt     *time.Time `json:"endsAt,omitempty"`

	TimeLimitMinutes *int       `json:"timeLimitMinutes,omitempty"`
	OpensAt          *time.Time `json:"opensAt,omitempty"`
	ClosesAt         *time.Time `json:"closesAt,omitempty"`

	DueAt             *time.Time `json:"dueAt,omitempty"`
	MaxFileSizeMB     *int       `json:"maxFileSizeMb,omitempty"`
	AllowedExtensions []string   `json:"allowedExtensions,omitempty"`
	MaxScore          *int       `json:"maxScore,omitempty"`
}

// EventPatch is a partial update. Nil fields are left untouched. Type is
// deliberately absent: it is fixed at creation.
type EventPatch struct {
	JobID       *string `json:"jobId,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	EventFields
}

// EventFilter narrows the participant-facing discovery query.
type EventFilter struct {
	JobID string
	Type  EventType
}

// QuestionKind distinguishes auto-scored questions from free text.
type QuestionKind string

const (
	QuestionMultipleChoice QuestionKind = "multiple_choice"
	QuestionShortAnswer    QuestionKind = "short_answer"
)

// Question belongs to a quiz event. CorrectOption is the stringified zero-based
// index of the right option and must never reach a participant.
type Question struct {
	ID            string       `json:"id"`
	EventID       string       `json:"eventId"`
	Position      int          `json:"position"`
	Text          string       `json:"text"`
	Kind          QuestionKind `json:"kind"`
	Options       []string     `json:"options,omitempty"`
	CorrectOption string       `json:"correctOption,omitempty"`
	Points        int          `json:"points"`
}

// View strips the answer key.
func (q Question) View() QuestionView {
	return QuestionView{
		ID:       q.ID,
		Position: q.Position,
		Text:     q.Text,
		Kind:     q.Kind,
		Options:  append([]string(nil), q.Options...),
		Points:   q.Points,
	}
}

// QuestionView is what a participant sees of a question.
type QuestionView struct {
	ID       string       `json:"id"`
	Position int          `json:"position"`
	Text     string       `json:"text"`
	Kind     QuestionKind `json:"kind"`
	Options  []string     `json:"options,omitempty"`
	Points   int          `json:"points"`
}

// QuestionDefinition is the author input for adding or replacing a question.
type QuestionDefinition struct {
	Text          string       `json:"text"`
	Kind          QuestionKind `json:"kind"`
	Options       []string     `json:"options,omitempty"`
	CorrectOption string       `json:"correctOption,omitempty"`
	Points        int          `json:"points"`
}

// SessionState is the derived state of a participant's quiz attempt.
type SessionState string

const (
	SessionNotStarted SessionState = "not_started"
	SessionInProgress SessionState = "in_progress"
	SessionSubmitted  SessionState = "submitted"
)

// QuizSubmission is one participant's attempt at a quiz. At most one exists per
// (event, participant).
type QuizSubmission struct {
	ID            string            `json:"id"`
	EventID       string            `json:"eventId"`
	ParticipantID string            `json:"participantId"`
	StartedAt     time.Time         `json:"startedAt"`
	Answers       map[string]string `json:"answers"`
	// TimeLimitMinutes is copied from the event at start so later edits cannot
	// move an in-flight deadline.
	TimeLimitMinutes *int       `json:"timeLimitMinutes,omitempty"`
	SubmittedAt      *time.Time `json:"submittedAt,omitempty"`
	ElapsedSeconds   *int       `json:"elapsedSeconds,omitempty"`
	ForcedSubmit     bool       `json:"forcedSubmit"`
	Score            *int       `json:"score,omitempty"`
	MaxScore         *int       `json:"maxScore,omitempty"`
	// PendingPoints are short-answer points that only a human grader can award.
	PendingPoints int        `json:"pendingPoints"`
	GradedAt      *time.Time `json:"gradedAt,omitempty"`
	GradedBy      string     `json:"gradedBy,omitempty"`
}

// State derives the session state from the submit timestamp.
func (s QuizSubmission) State() SessionState {
	if s.SubmittedAt != nil {
		return SessionSubmitted
	}
	return SessionInProgress
}

// Deadline returns the instant the attempt must be submitted by, if limited.
func (s QuizSubmission) Deadline() (time.Time, bool) {
	if s.TimeLimitMinutes == nil || *s.TimeLimitMinutes <= 0 {
		return time.Time{}, false
	}
	return s.StartedAt.Add(time.Duration(*s.TimeLimitMinutes) * time.Minute), true
}

// QuizResult is the outcome written when a submission closes.
type QuizResult struct {
	SubmittedAt    time.Time
	ElapsedSeconds int
	Forced         bool
	Score          int
	MaxScore       int
	PendingPoints  int
}

// SessionView is returned to a participant polling their attempt.
type SessionView struct {
	Submission       QuizSubmission `json:"submission"`
	State            SessionState   `json:"state"`
	Deadline         *time.Time     `json:"deadline,omitempty"`
	RemainingSeconds *int           `json:"remainingSeconds,omitempty"`
}

// AssignmentSubmission is the single accepted file for (event, participant).
type AssignmentSubmission struct {
	ID            string     `json:"id"`
	EventID       string     `json:"eventId"`
	ParticipantID string     `json:"participantId"`
	FileLocator   string     `json:"fileLocator"`
	Filename      string     `json:"filename"`
	SizeBytes     int64      `json:"sizeBytes"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	Score         *int       `json:"score,omitempty"`
	MaxScore      int        `json:"maxScore"`
	Feedback      string     `json:"feedback,omitempty"`
	GradedAt      *time.Time `json:"gradedAt,omitempty"`
	GradedBy      string     `json:"gradedBy,omitempty"`
}

// Upload is a file offered for an assignment. Size is len(Data) in bytes.
type Upload struct {
	Filename string
	Data     []byte
}

// Grade is a single write of the grading fields.
type Grade struct {
	Score    int
	Feedback string
	GradedAt time.Time
	GradedBy string
}

// RegistrationStatus tracks webinar attendance.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationAttended   RegistrationStatus = "attended"
)

// Registration is a participant's signup for a webinar.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"eventId"`
	ParticipantID string             `json:"participantId"`
	RegisteredAt  time.Time          `json:"registeredAt"`
	Status        RegistrationStatus `json:"status"`
	AttendedAt    *time.Time         `json:"attendedAt,omitempty"`
}

// ApplyPatch copies every set field of p onto e.
func (e *Event) ApplyPatch(p EventPatch) {
	if p.JobID != nil {
		e.JobID = *p.JobID
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	e.ApplyFields(p.EventFields)
}

// ApplyFields copies every set type-specific field of f onto e. Timestamps are
// stored in UTC.
func (e *Event) ApplyFields(f EventFields) {
	if f.MeetingURL != nil {
		e.MeetingURL = *f.MeetingURL
	}
	if f.Platform != nil {
		e.Platform = *f.Platform
	}
	e.StartsAt = utcOr(f.StartsAt, e.StartsAt)
	e.EndsAt = utcOr(f.EndsAt, e.EndsAt)
	e.TimeLimitMinutes = intOr(f.TimeLimitMinutes, e.TimeLimitMinutes)
	e.OpensAt = utcOr(f.OpensAt, e.OpensAt)
	e.ClosesAt = utcOr(f.ClosesAt, e.ClosesAt)
	e.DueAt = utcOr(f.DueAt, e.DueAt)
	e.MaxFileSizeMB = intOr(f.MaxFileSizeMB, e.MaxFileSizeMB)
	if f.AllowedExtensions != nil {
		e.AllowedExtensions = NormalizeExtensions(f.AllowedExtensions)
	}
	e.MaxScore = intOr(f.MaxScore, e.MaxScore)
}

// NormalizeExtensions lowercases, strips a leading dot and drops duplicates.
// A non-nil input always yields a non-nil result so emptiness stays detectable.
func NormalizeExtensions(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, ext := range in {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func utcOr(v, fallback *time.Time) *time.Time {
	if v == nil {
		return fallback
	}
	t := v.UTC()
	return &t
}

func intOr(v, fallback *int) *int {
	if v == nil {
		return fallback
	}
	n := *v
	return &n
}
