package app

import (
	"context"
	"strconv"
	"strings"

	"engagement-service/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// AddQuestion appends a question at the end of a quiz.
func (s *EventService) AddQuestion(ctx context.Context, ownerID, eventID string, def domain.QuestionDefinition) (domain.Question, error) {
	if _, err := s.quizOwned(ctx, ownerID, eventID); err != nil {
		return domain.Question{}, err
	}
	def, err := validateQuestion(def)
	if err != nil {
		return domain.Question{}, err
	}

	unlock, err := s.locks.Lock(ctx, questionsLockKey(eventID))
	if err != nil {
		return domain.Question{}, err
	}
	defer unlock()

	existing, err := s.store.ListQuestions(ctx, eventID)
	if err != nil {
		return domain.Question{}, err
	}
	q := domain.Question{
		ID:            uuid.NewString(),
		EventID:       eventID,
		Position:      len(existing),
		Text:          def.Text,
		Kind:          def.Kind,
		Options:       def.Options,
		CorrectOption: def.CorrectOption,
		Points:        def.Points,
	}
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return domain.Question{}, errors.Wrap(err, "create question")
	}
	return q, nil
}

// UpdateQuestion replaces a question's content; its position is kept.
func (s *EventService) UpdateQuestion(ctx context.Context, ownerID, questionID string, def domain.QuestionDefinition) (domain.Question, error) {
	q, err := s.ownedQuestion(ctx, ownerID, questionID)
	if err != nil {
		return domain.Question{}, err
	}
	def, err = validateQuestion(def)
	if err != nil {
		return domain.Question{}, err
	}
	q.Text = def.Text
	q.Kind = def.Kind
	q.Options = def.Options
	q.CorrectOption = def.CorrectOption
	q.Points = def.Points
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return domain.Question{}, errors.Wrap(err, "update question")
	}
	return q, nil
}

// DeleteQuestion removes a question; later questions move up one position.
func (s *EventService) DeleteQuestion(ctx context.Context, ownerID, questionID string) error {
	q, err := s.ownedQuestion(ctx, ownerID, questionID)
	if err != nil {
		return err
	}
	unlock, err := s.locks.Lock(ctx, questionsLockKey(q.EventID))
	if err != nil {
		return err
	}
	defer unlock()
	return s.store.DeleteQuestion(ctx, questionID)
}

// ReorderQuestions sets the order of a quiz. orderedIDs must name every question
// of the quiz exactly once.
func (s *EventService) ReorderQuestions(ctx context.Context, ownerID, eventID string, orderedIDs []string) ([]domain.Question, error) {
	if _, err := s.quizOwned(ctx, ownerID, eventID); err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, questionsLockKey(eventID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.store.ListQuestions(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(orderedIDs) != len(existing) {
		return nil, errors.Wrapf(domain.ErrValidation, "order names %d questions, quiz has %d", len(orderedIDs), len(existing))
	}
	known := make(map[string]bool, len(existing))
	for _, q := range existing {
		known[q.ID] = false
	}
	for _, id := range orderedIDs {
		seen, ok := known[id]
		if !ok {
			return nil, errors.Wrapf(domain.ErrValidation, "question %s is not part of this quiz", id)
		}
		if seen {
			return nil, errors.Wrapf(domain.ErrValidation, "question %s listed twice", id)
		}
		known[id] = true
	}
	if err := s.store.ReorderQuestions(ctx, eventID, orderedIDs); err != nil {
		return nil, errors.Wrap(err, "reorder questions")
	}
	return s.store.ListQuestions(ctx, eventID)
}

// ListQuestions returns the owner's view of a quiz, answer key included.
func (s *EventService) ListQuestions(ctx context.Context, ownerID, eventID string) ([]domain.Question, error) {
	if _, err := s.quizOwned(ctx, ownerID, eventID); err != nil {
		return nil, err
	}
	return s.store.ListQuestions(ctx, eventID)
}

// TotalPoints sums the current question set. It is never cached.
func (s *EventService) TotalPoints(ctx context.Context, ownerID, eventID string) (int, error) {
	questions, err := s.ListQuestions(ctx, ownerID, eventID)
	if err != nil {
		return 0, err
	}
	return totalPoints(questions), nil
}

func (s *EventService) quizOwned(ctx context.Context, ownerID, eventID string) (domain.Event, error) {
	event, err := ownedEvent(ctx, s.store, ownerID, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	if event.Type != domain.EventTypeQuiz {
		return domain.Event{}, errors.Wrapf(domain.ErrValidation, "questions only apply to quiz events, event %s is a %s", eventID, event.Type)
	}
	return event, nil
}

func (s *EventService) ownedQuestion(ctx context.Context, ownerID, questionID string) (domain.Question, error) {
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return domain.Question{}, err
	}
	if _, err := ownedEvent(ctx, s.store, ownerID, q.EventID); err != nil {
		return domain.Question{}, errors.Wrapf(domain.ErrNotFound, "question %s", questionID)
	}
	return q, nil
}

func questionsLockKey(eventID string) string {
	return "event:" + eventID + ":questions"
}

func validateQuestion(def domain.QuestionDefinition) (domain.QuestionDefinition, error) {
	def.Text = strings.TrimSpace(def.Text)
	if def.Text == "" {
		return def, errors.Wrap(domain.ErrValidation, "question text is required")
	}
	if def.Points <= 0 {
		return def, errors.Wrapf(domain.ErrValidation, "points must be a positive integer, got %d", def.Points)
	}
	switch def.Kind {
	case domain.QuestionMultipleChoice:
		if len(def.Options) < 2 {
			return def, errors.Wrap(domain.ErrValidation, "multiple choice needs at least two options")
		}
		idx, err := strconv.Atoi(def.CorrectOption)
		if err != nil || strconv.Itoa(idx) != def.CorrectOption || idx < 0 || idx >= len(def.Options) {
			return def, errors.Wrapf(domain.ErrValidation, "correctOption %q must be an index between 0 and %d", def.CorrectOption, len(def.Options)-1)
		}
		def.Options = append([]string(nil), def.Options...)
	case domain.QuestionShortAnswer:
		if len(def.Options) > 0 || def.CorrectOption != "" {
			return def, errors.Wrap(domain.ErrValidation, "short answer questions take no options")
		}
		def.Options = nil
	default:
		return def, errors.Wrapf(domain.ErrValidation, "unknown question kind %q", def.Kind)
	}
	return def, nil
}
