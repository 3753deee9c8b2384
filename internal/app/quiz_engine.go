package app

import (
	"context"
	"time"

	"engagement-service/internal/clock"
	"engagement-service/internal/domain"
	"engagement-service/internal/logger"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type quizStore interface {
	EventRepository
	QuestionRepository
	QuizSubmissionRepository
}

// QuizEngine runs a participant's attempt at a quiz:
//
//	NotStarted --Start--> InProgress --Submit or deadline--> Submitted
//
// The deadline is derived from the stored start time and the time limit copied
// at start, and it is checked on every access, so an expired attempt is closed
// before the caller's action runs no matter which process serves it.
type QuizEngine struct {
	store  quizStore
	locks  Locker
	clock  clock.Clock
	log    *logger.Logger
	starts singleflight.Group
}

func NewQuizEngine(store quizStore, locks Locker, clk clock.Clock, log *logger.Logger) *QuizEngine {
	return &QuizEngine{store: store, locks: locks, clock: clk, log: log.With("component", "quiz")}
}

// Start opens an attempt. If the participant already has one it is returned
// together with domain.ErrAlreadyStarted so a reconnecting client can resume.
func (e *QuizEngine) Start(ctx context.Context, eventID, participantID string) (domain.QuizSubmission, error) {
	if participantID == "" {
		return domain.QuizSubmission{}, errors.Wrap(domain.ErrValidation, "participant is required")
	}
	event, err := publishedEvent(ctx, e.store, eventID, domain.EventTypeQuiz)
	if err != nil {
		return domain.QuizSubmission{}, err
	}

	// Reconnect storms tend to fire several starts at once; collapse them here and
	// let the lock plus the store's uniqueness handle other processes.
	v, err, _ := e.starts.Do(eventID+"/"+participantID, func() (interface{}, error) {
		return e.start(ctx, event, participantID)
	})
	sub, _ := v.(domain.QuizSubmission)
	return sub, err
}

func (e *QuizEngine) start(ctx context.Context, event domain.Event, participantID string) (domain.QuizSubmission, error) {
	unlock, err := e.locks.Lock(ctx, "quiz:"+event.ID+":start:"+participantID)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	defer unlock()

	existing, err := e.store.FindQuizSubmission(ctx, event.ID, participantID)
	if err == nil {
		return e.resume(ctx, existing.ID, participantID)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.QuizSubmission{}, err
	}

	now := e.clock.Now()
	if event.OpensAt != nil && now.Before(*event.OpensAt) {
		return domain.QuizSubmission{}, errors.Wrapf(domain.ErrEventClosed, "quiz opens at %s", event.OpensAt.Format(time.RFC3339))
	}
	if event.ClosesAt != nil && now.After(*event.ClosesAt) {
		return domain.QuizSubmission{}, errors.Wrapf(domain.ErrEventClosed, "quiz closed at %s", event.ClosesAt.Format(time.RFC3339))
	}

	sub := domain.QuizSubmission{
		ID:            uuid.NewString(),
		EventID:       event.ID,
		ParticipantID: participantID,
		StartedAt:     now,
		Answers:       map[string]string{},
	}
	if event.TimeLimitMinutes != nil {
		limit := *event.TimeLimitMinutes
		sub.TimeLimitMinutes = &limit
	}
	if err := e.store.CreateQuizSubmission(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			existing, findErr := e.store.FindQuizSubmission(ctx, event.ID, participantID)
			if findErr != nil {
				return domain.QuizSubmission{}, findErr
			}
			return e.resume(ctx, existing.ID, participantID)
		}
		return domain.QuizSubmission{}, errors.Wrap(err, "create quiz submission")
	}
	e.log.Info("quiz started", "event_id", event.ID, "submission_id", sub.ID)
	return sub, nil
}

func (e *QuizEngine) resume(ctx context.Context, submissionID, participantID string) (domain.QuizSubmission, error) {
	sub, err := e.session(ctx, submissionID, participantID, false, nil)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	return sub, domain.ErrAlreadyStarted
}

// SaveAnswer records one answer, replacing any earlier answer to the same
// question. An answer arriving after the deadline is not recorded: the attempt
// is closed first and domain.ErrAlreadySubmitted is returned.
func (e *QuizEngine) SaveAnswer(ctx context.Context, submissionID, participantID, questionID, answer string) (domain.QuizSubmission, error) {
	return e.session(ctx, submissionID, participantID, false, func(sub domain.QuizSubmission) (domain.QuizSubmission, error) {
		if sub.State() == domain.SessionSubmitted {
			return sub, errors.Wrapf(domain.ErrAlreadySubmitted, "submission %s closed at %s", sub.ID, sub.SubmittedAt.Format(time.RFC3339))
		}
		questions, err := e.store.ListQuestions(ctx, sub.EventID)
		if err != nil {
			return domain.QuizSubmission{}, err
		}
		if !hasQuestion(questions, questionID) {
			return domain.QuizSubmission{}, errors.Wrapf(domain.ErrInvalidQuestion, "question %s is not part of this quiz", questionID)
		}
		if err := e.store.SaveQuizAnswer(ctx, sub.ID, questionID, answer); err != nil {
			return domain.QuizSubmission{}, err
		}
		answers := make(map[string]string, len(sub.Answers)+1)
		for k, v := range sub.Answers {
			answers[k] = v
		}
		answers[questionID] = answer
		sub.Answers = answers
		return sub, nil
	})
}

// Submit closes the attempt and scores it. Submitting again returns the
// recorded result untouched.
func (e *QuizEngine) Submit(ctx context.Context, submissionID, participantID string) (domain.QuizSubmission, error) {
	return e.session(ctx, submissionID, participantID, false, func(sub domain.QuizSubmission) (domain.QuizSubmission, error) {
		if sub.State() == domain.SessionSubmitted {
			return sub, nil
		}
		return e.close(ctx, sub, e.clock.Now(), false)
	})
}

// Poll is the client heartbeat. It reports the attempt and its remaining time,
// closing it first if the deadline has passed.
func (e *QuizEngine) Poll(ctx context.Context, submissionID, participantID string) (domain.SessionView, error) {
	sub, err := e.session(ctx, submissionID, participantID, false, nil)
	if err != nil {
		return domain.SessionView{}, err
	}
	return e.view(sub), nil
}

// State reports the participant's state for a quiz, including NotStarted.
func (e *QuizEngine) State(ctx context.Context, eventID, participantID string) (domain.SessionView, error) {
	if _, err := publishedEvent(ctx, e.store, eventID, domain.EventTypeQuiz); err != nil {
		return domain.SessionView{}, err
	}
	existing, err := e.store.FindQuizSubmission(ctx, eventID, participantID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.SessionView{State: domain.SessionNotStarted}, nil
	}
	if err != nil {
		return domain.SessionView{}, err
	}
	return e.Poll(ctx, existing.ID, participantID)
}

// Paper returns the questions of the participant's quiz without the answer key.
func (e *QuizEngine) Paper(ctx context.Context, submissionID, participantID string) ([]domain.QuestionView, error) {
	sub, err := e.session(ctx, submissionID, participantID, false, nil)
	if err != nil {
		return nil, err
	}
	questions, err := e.store.ListQuestions(ctx, sub.EventID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, q.View())
	}
	return views, nil
}

// Get returns a submission to its participant or to the event owner.
func (e *QuizEngine) Get(ctx context.Context, callerID, submissionID string) (domain.QuizSubmission, error) {
	return e.session(ctx, submissionID, callerID, true, nil)
}

// ListForEvent returns every attempt at one of the owner's quizzes. Expired
// attempts are closed on the way out.
func (e *QuizEngine) ListForEvent(ctx context.Context, ownerID, eventID string) ([]domain.QuizSubmission, error) {
	if _, err := ownedEvent(ctx, e.store, ownerID, eventID); err != nil {
		return nil, err
	}
	subs, err := e.store.ListQuizSubmissions(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	for i, sub := range subs {
		if deadline, ok := sub.Deadline(); ok && sub.State() == domain.SessionInProgress && !now.Before(deadline) {
			refreshed, err := e.session(ctx, sub.ID, ownerID, true, nil)
			if err != nil {
				return nil, err
			}
			subs[i] = refreshed
		}
	}
	return subs, nil
}

// session serializes work on one submission. It loads the submission under its
// lock, checks the caller may see it, force-submits it if its deadline has
// passed, and then runs fn (if any) with the up-to-date record.
func (e *QuizEngine) session(
	ctx context.Context,
	submissionID, callerID string,
	ownerAllowed bool,
	fn func(domain.QuizSubmission) (domain.QuizSubmission, error),
) (domain.QuizSubmission, error) {
	unlock, err := e.locks.Lock(ctx, "quiz:submission:"+submissionID)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	defer unlock()

	sub, err := e.store.GetQuizSubmission(ctx, submissionID)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	if sub.ParticipantID != callerID {
		if !ownerAllowed {
			return domain.QuizSubmission{}, errors.Wrapf(domain.ErrNotFound, "quiz submission %s", submissionID)
		}
		if _, err := ownedEvent(ctx, e.store, callerID, sub.EventID); err != nil {
			return domain.QuizSubmission{}, errors.Wrapf(domain.ErrNotFound, "quiz submission %s", submissionID)
		}
	}

	sub, err = e.enforceDeadline(ctx, sub)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	if fn == nil {
		return sub, nil
	}
	return fn(sub)
}

func (e *QuizEngine) enforceDeadline(ctx context.Context, sub domain.QuizSubmission) (domain.QuizSubmission, error) {
	if sub.State() == domain.SessionSubmitted {
		return sub, nil
	}
	deadline, ok := sub.Deadline()
	if !ok || e.clock.Now().Before(deadline) {
		return sub, nil
	}
	e.log.Info("quiz deadline reached, submitting", "submission_id", sub.ID, "deadline", deadline)
	return e.close(ctx, sub, deadline, true)
}

// close scores the answers recorded right now and writes the result. A forced
// close is stamped with the deadline itself so the record matches what an
// on-time submit would have produced.
func (e *QuizEngine) close(ctx context.Context, sub domain.QuizSubmission, at time.Time, forced bool) (domain.QuizSubmission, error) {
	questions, err := e.store.ListQuestions(ctx, sub.EventID)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	score, maxScore, pending := scoreAnswers(questions, sub.Answers)
	elapsed := int(at.Sub(sub.StartedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	result := domain.QuizResult{
		SubmittedAt:    at,
		ElapsedSeconds: elapsed,
		Forced:         forced,
		Score:          score,
		MaxScore:       maxScore,
		PendingPoints:  pending,
	}

	applied, err := e.store.CloseQuizSubmission(ctx, sub.ID, result)
	if err != nil {
		return domain.QuizSubmission{}, errors.Wrap(err, "close quiz submission")
	}
	if !applied {
		// Someone else closed it first; theirs is the recorded result.
		return e.store.GetQuizSubmission(ctx, sub.ID)
	}

	sub.SubmittedAt = &result.SubmittedAt
	sub.ElapsedSeconds = &result.ElapsedSeconds
	sub.ForcedSubmit = forced
	sub.Score = &result.Score
	sub.MaxScore = &result.MaxScore
	sub.PendingPoints = pending
	e.log.Info("quiz submitted", "submission_id", sub.ID, "score", score, "max_score", maxScore, "forced", forced)
	return sub, nil
}

func (e *QuizEngine) view(sub domain.QuizSubmission) domain.SessionView {
	v := domain.SessionView{Submission: sub, State: sub.State()}
	if deadline, ok := sub.Deadline(); ok {
		v.Deadline = &deadline
		if v.State == domain.SessionInProgress {
			remaining := int(deadline.Sub(e.clock.Now()) / time.Second)
			if remaining < 0 {
				remaining = 0
			}
			v.RemainingSeconds = &remaining
		}
	}
	return v
}
