package app

import (
	"context"

	"engagement-service/internal/clock"
	"engagement-service/internal/domain"
	"engagement-service/internal/logger"
	"github.com/cockroachdb/errors"
)

type gradingStore interface {
	EventRepository
	QuizSubmissionRepository
	AssignmentRepository
}

// GradingService lets an event owner record a score once per submission.
type GradingService struct {
	store   gradingStore
	quizzes *QuizEngine
	locks   Locker
	clock   clock.Clock
	log     *logger.Logger
}

func NewGradingService(store gradingStore, quizzes *QuizEngine, locks Locker, clk clock.Clock, log *logger.Logger) *GradingService {
	return &GradingService{store: store, quizzes: quizzes, locks: locks, clock: clk, log: log.With("component", "grading")}
}

// GradeQuiz overrides the automatic score of a submitted quiz, typically to
// award short-answer points. The attempt's deadline is enforced first.
func (s *GradingService) GradeQuiz(ctx context.Context, graderID, submissionID string, score int) (domain.QuizSubmission, error) {
	return s.quizzes.session(ctx, submissionID, graderID, true, func(sub domain.QuizSubmission) (domain.QuizSubmission, error) {
		if _, err := ownedEvent(ctx, s.store, graderID, sub.EventID); err != nil {
			return domain.QuizSubmission{}, errors.Wrapf(domain.ErrNotFound, "quiz submission %s", submissionID)
		}
		if sub.State() != domain.SessionSubmitted {
			return domain.QuizSubmission{}, errors.Wrap(domain.ErrValidation, "quiz is still in progress")
		}
		maxScore := 0
		if sub.MaxScore != nil {
			maxScore = *sub.MaxScore
		}
		if err := checkScore(score, maxScore); err != nil {
			return domain.QuizSubmission{}, err
		}

		grade := domain.Grade{Score: score, GradedAt: s.clock.Now(), GradedBy: graderID}
		applied, err := s.store.GradeQuizSubmission(ctx, submissionID, grade)
		if err != nil {
			return domain.QuizSubmission{}, errors.Wrap(err, "grade quiz submission")
		}
		if !applied {
			return domain.QuizSubmission{}, errors.Wrapf(domain.ErrAlreadyGraded, "quiz submission %s", submissionID)
		}
		sub.Score = &grade.Score
		sub.GradedAt = &grade.GradedAt
		sub.GradedBy = graderID
		s.log.Info("quiz graded", "submission_id", submissionID, "score", score)
		return sub, nil
	})
}

// GradeAssignment sets score and feedback on an assignment submission.
func (s *GradingService) GradeAssignment(ctx context.Context, graderID, submissionID string, score int, feedback string) (domain.AssignmentSubmission, error) {
	sub, err := s.store.GetAssignmentSubmission(ctx, submissionID)
	if err != nil {
		return domain.AssignmentSubmission{}, err
	}
	if _, err := ownedEvent(ctx, s.store, graderID, sub.EventID); err != nil {
		return domain.AssignmentSubmission{}, errors.Wrapf(domain.ErrNotFound, "assignment submission %s", submissionID)
	}
	if err := checkScore(score, sub.MaxScore); err != nil {
		return domain.AssignmentSubmission{}, err
	}

	unlock, err := s.locks.Lock(ctx, "assignment:submission:"+submissionID)
	if err != nil {
		return domain.AssignmentSubmission{}, err
	}
	defer unlock()

	grade := domain.Grade{Score: score, Feedback: feedback, GradedAt: s.clock.Now(), GradedBy: graderID}
	applied, err := s.store.GradeAssignmentSubmission(ctx, submissionID, grade)
	if err != nil {
		return domain.AssignmentSubmission{}, errors.Wrap(err, "grade assignment submission")
	}
	if !applied {
		return domain.AssignmentSubmission{}, errors.Wrapf(domain.ErrAlreadyGraded, "assignment submission %s", submissionID)
	}
	sub.Score = &grade.Score
	sub.Feedback = feedback
	sub.GradedAt = &grade.GradedAt
	sub.GradedBy = graderID
	s.log.Info("assignment graded", "submission_id", submissionID, "score", score)
	return sub, nil
}

func checkScore(score, maxScore int) error {
	if score < 0 || score > maxScore {
		return errors.Wrapf(domain.ErrInvalidScore, "score %d outside 0..%d", score, maxScore)
	}
	return nil
}
