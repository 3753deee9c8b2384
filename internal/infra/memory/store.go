package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"engagement-service/internal/domain"
	"github.com/cockroachdb/errors"
)

type pair struct {
	eventID       string
	participantID string
}

// Store is an in-memory implementation of app.Store. Every read returns a copy,
// so callers can never mutate stored records in place.
type Store struct {
	mu sync.RWMutex

	events        map[string]domain.Event
	questions     map[string]domain.Question
	quizzes       map[string]domain.QuizSubmission
	assignments   map[string]domain.AssignmentSubmission
	registrations map[string]domain.Registration

	quizByPair         map[pair]string
	assignmentByPair   map[pair]string
	registrationByPair map[pair]string
}

func NewStore() *Store {
	return &Store{
		events:             make(map[string]domain.Event),
		questions:          make(map[string]domain.Question),
		quizzes:            make(map[string]domain.QuizSubmission),
		assignments:        make(map[string]domain.AssignmentSubmission),
		registrations:      make(map[string]domain.Registration),
		quizByPair:         make(map[pair]string),
		assignmentByPair:   make(map[pair]string),
		registrationByPair: make(map[pair]string),
	}
}

// events

func (s *Store) CreateEvent(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; ok {
		return errors.Wrapf(domain.ErrConflict, "event %s", event.ID)
	}
	s.events[event.ID] = cloneEvent(event)
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return cloneEvent(event), nil
}

func (s *Store) UpdateEvent(_ context.Context, id string, patch domain.EventPatch, updatedAt time.Time) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	event = cloneEvent(event)
	event.ApplyPatch(patch)
	event.UpdatedAt = updatedAt
	s.events[id] = event
	return cloneEvent(event), nil
}

func (s *Store) PublishEvent(_ context.Context, id string, at time.Time) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	if !event.IsPublished() {
		event.Status = domain.EventStatusPublished
		event.PublishedAt = &at
		event.UpdatedAt = at
		s.events[id] = event
	}
	return cloneEvent(event), nil
}

func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	delete(s.events, id)
	for qid, q := range s.questions {
		if q.EventID == id {
			delete(s.questions, qid)
		}
	}
	for sid, sub := range s.quizzes {
		if sub.EventID == id {
			delete(s.quizzes, sid)
			delete(s.quizByPair, pair{sub.EventID, sub.ParticipantID})
		}
	}
	for sid, sub := range s.assignments {
		if sub.EventID == id {
			delete(s.assignments, sid)
			delete(s.assignmentByPair, pair{sub.EventID, sub.ParticipantID})
		}
	}
	for rid, reg := range s.registrations {
		if reg.EventID == id {
			delete(s.registrations, rid)
			delete(s.registrationByPair, pair{reg.EventID, reg.ParticipantID})
		}
	}
	return nil
}

func (s *Store) ListEventsByOwner(_ context.Context, ownerID string) ([]domain.Event, error) {
	return s.listEvents(func(e domain.Event) bool { return e.OwnerID == ownerID }), nil
}

func (s *Store) ListPublishedEvents(_ context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	return s.listEvents(func(e domain.Event) bool {
		if !e.IsPublished() {
			return false
		}
		if filter.JobID != "" && e.JobID != filter.JobID {
			return false
		}
		return filter.Type == "" || e.Type == filter.Type
	}), nil
}

func (s *Store) listEvents(keep func(domain.Event) bool) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, 0)
	for _, e := range s.events {
		if keep(e) {
			out = append(out, cloneEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// questions

func (s *Store) CreateQuestion(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[q.EventID]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "event %s", q.EventID)
	}
	if _, ok := s.questions[q.ID]; ok {
		return errors.Wrapf(domain.ErrConflict, "question %s", q.ID)
	}
	s.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (s *Store) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, errors.Wrapf(domain.ErrNotFound, "question %s", id)
	}
	return cloneQuestion(q), nil
}

func (s *Store) UpdateQuestion(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.questions[q.ID]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "question %s", q.ID)
	}
	q.EventID = current.EventID
	q.Position = current.Position
	s.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "question %s", id)
	}
	delete(s.questions, id)
	for qid, other := range s.questions {
		if other.EventID == q.EventID && other.Position > q.Position {
			other.Position--
			s.questions[qid] = other
		}
	}
	return nil
}

func (s *Store) ListQuestions(_ context.Context, eventID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.questionsOf(eventID), nil
}

func (s *Store) ReorderQuestions(_ context.Context, eventID string, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range orderedIDs {
		q, ok := s.questions[id]
		if !ok || q.EventID != eventID {
			return errors.Wrapf(domain.ErrNotFound, "question %s", id)
		}
	}
	for pos, id := range orderedIDs {
		q := s.questions[id]
		q.Position = pos
		s.questions[id] = q
	}
	return nil
}

func (s *Store) questionsOf(eventID string) []domain.Question {
	out := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.EventID == eventID {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// quiz submissions

func (s *Store) CreateQuizSubmission(_ context.Context, sub domain.QuizSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{sub.EventID, sub.ParticipantID}
	if _, ok := s.quizByPair[key]; ok {
		return errors.Wrapf(domain.ErrConflict, "quiz submission for %s/%s", sub.EventID, sub.ParticipantID)
	}
	if _, ok := s.events[sub.EventID]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "event %s", sub.EventID)
	}
	s.quizzes[sub.ID] = cloneQuiz(sub)
	s.quizByPair[key] = sub.ID
	return nil
}

func (s *Store) GetQuizSubmission(_ context.Context, id string) (domain.QuizSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.quizzes[id]
	if !ok {
		return domain.QuizSubmission{}, errors.Wrapf(domain.ErrNotFound, "quiz submission %s", id)
	}
	return cloneQuiz(sub), nil
}

func (s *Store) FindQuizSubmission(_ context.Context, eventID, participantID string) (domain.QuizSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.quizByPair[pair{eventID, participantID}]
	if !ok {
		return domain.QuizSubmission{}, errors.Wrapf(domain.ErrNotFound, "quiz submission for %s/%s", eventID, participantID)
	}
	return cloneQuiz(s.quizzes[id]), nil
}

func (s *Store) ListQuizSubmissions(_ context.Context, eventID string) ([]domain.QuizSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizSubmission, 0)
	for _, sub := range s.quizzes {
		if sub.EventID == eventID {
			out = append(out, cloneQuiz(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SaveQuizAnswer(_ context.Context, id, questionID, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.quizzes[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "quiz submission %s", id)
	}
	if sub.SubmittedAt != nil {
		return errors.Wrapf(domain.ErrAlreadySubmitted, "quiz submission %s", id)
	}
	answers := make(map[string]string, len(sub.Answers)+1)
	for k, v := range sub.Answers {
		answers[k] = v
	}
	answers[questionID] = answer
	sub.Answers = answers
	s.quizzes[id] = sub
	return nil
}

func (s *Store) CloseQuizSubmission(_ context.Context, id string, result domain.QuizResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.quizzes[id]
	if !ok {
		return false, errors.Wrapf(domain.ErrNotFound, "quiz submission %s", id)
	}
	if sub.SubmittedAt != nil {
		return false, nil
	}
	sub.SubmittedAt = &result.SubmittedAt
	sub.ElapsedSeconds = &result.ElapsedSeconds
	sub.ForcedSubmit = result.Forced
	sub.Score = &result.Score
	sub.MaxScore = &result.MaxScore
	sub.PendingPoints = result.PendingPoints
	s.quizzes[id] = cloneQuiz(sub)
	return true, nil
}

func (s *Store) GradeQuizSubmission(_ context.Context, id string, grade domain.Grade) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.quizzes[id]
	if !ok {
		return false, errors.Wrapf(domain.ErrNotFound, "quiz submission %s", id)
	}
	if sub.GradedAt != nil {
		return false, nil
	}
	sub = cloneQuiz(sub)
	sub.Score = &grade.Score
	sub.GradedAt = &grade.GradedAt
	sub.GradedBy = grade.GradedBy
	s.quizzes[id] = sub
	return true, nil
}

// assignment submissions

func (s *Store) CreateAssignmentSubmission(_ context.Context, sub domain.AssignmentSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{sub.EventID, sub.ParticipantID}
	if _, ok := s.assignmentByPair[key]; ok {
		return errors.Wrapf(domain.ErrConflict, "assignment submission for %s/%s", sub.EventID, sub.ParticipantID)
	}
	if _, ok := s.events[sub.EventID]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "event %s", sub.EventID)
	}
	s.assignments[sub.ID] = cloneAssignment(sub)
	s.assignmentByPair[key] = sub.ID
	return nil
}

func (s *Store) GetAssignmentSubmission(_ context.Context, id string) (domain.AssignmentSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.assignments[id]
	if !ok {
		return domain.AssignmentSubmission{}, errors.Wrapf(domain.ErrNotFound, "assignment submission %s", id)
	}
	return cloneAssignment(sub), nil
}

func (s *Store) FindAssignmentSubmission(_ context.Context, eventID, participantID string) (domain.AssignmentSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.assignmentByPair[pair{eventID, participantID}]
	if !ok {
		return domain.AssignmentSubmission{}, errors.Wrapf(domain.ErrNotFound, "assignment submission for %s/%s", eventID, participantID)
	}
	return cloneAssignment(s.assignments[id]), nil
}

func (s *Store) ListAssignmentSubmissions(_ context.Context, eventID string) ([]domain.AssignmentSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AssignmentSubmission, 0)
	for _, sub := range s.assignments {
		if sub.EventID == eventID {
			out = append(out, cloneAssignment(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GradeAssignmentSubmission(_ context.Context, id string, grade domain.Grade) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.assignments[id]
	if !ok {
		return false, errors.Wrapf(domain.ErrNotFound, "assignment submission %s", id)
	}
	if sub.GradedAt != nil {
		return false, nil
	}
	sub.Score = &grade.Score
	sub.Feedback = grade.Feedback
	sub.GradedAt = &grade.GradedAt
	sub.GradedBy = grade.GradedBy
	s.assignments[id] = cloneAssignment(sub)
	return true, nil
}

// registrations

func (s *Store) CreateRegistration(_ context.Context, reg domain.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{reg.EventID, reg.ParticipantID}
	if _, ok := s.registrationByPair[key]; ok {
		return errors.Wrapf(domain.ErrConflict, "registration for %s/%s", reg.EventID, reg.ParticipantID)
	}
	if _, ok := s.events[reg.EventID]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "event %s", reg.EventID)
	}
	s.registrations[reg.ID] = cloneRegistration(reg)
	s.registrationByPair[key] = reg.ID
	return nil
}

func (s *Store) GetRegistration(_ context.Context, id string) (domain.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registrations[id]
	if !ok {
		return domain.Registration{}, errors.Wrapf(domain.ErrNotFound, "registration %s", id)
	}
	return cloneRegistration(reg), nil
}

func (s *Store) FindRegistration(_ context.Context, eventID, participantID string) (domain.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.registrationByPair[pair{eventID, participantID}]
	if !ok {
		return domain.Registration{}, errors.Wrapf(domain.ErrNotFound, "registration for %s/%s", eventID, participantID)
	}
	return cloneRegistration(s.registrations[id]), nil
}

func (s *Store) ListRegistrations(_ context.Context, eventID string) ([]domain.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Registration, 0)
	for _, reg := range s.registrations {
		if reg.EventID == eventID {
			out = append(out, cloneRegistration(reg))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) MarkAttended(_ context.Context, id string, at time.Time) (domain.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok {
		return domain.Registration{}, errors.Wrapf(domain.ErrNotFound, "registration %s", id)
	}
	if reg.AttendedAt == nil {
		reg.Status = domain.RegistrationAttended
		reg.AttendedAt = &at
		s.registrations[id] = reg
	}
	return cloneRegistration(reg), nil
}

func cloneEvent(e domain.Event) domain.Event {
	e.StartsAt = cloneTime(e.StartsAt)
	e.EndsAt = cloneTime(e.EndsAt)
	e.TimeLimitMinutes = cloneInt(e.TimeLimitMinutes)
	e.OpensAt = cloneTime(e.OpensAt)
	e.ClosesAt = cloneTime(e.ClosesAt)
	e.DueAt = cloneTime(e.DueAt)
	e.MaxFileSizeMB = cloneInt(e.MaxFileSizeMB)
	if e.AllowedExtensions != nil {
		e.AllowedExtensions = append([]string{}, e.AllowedExtensions...)
	}
	e.MaxScore = cloneInt(e.MaxScore)
	e.PublishedAt = cloneTime(e.PublishedAt)
	return e
}

func cloneQuestion(q domain.Question) domain.Question {
	if q.Options != nil {
		q.Options = append([]string{}, q.Options...)
	}
	return q
}

func cloneQuiz(sub domain.QuizSubmission) domain.QuizSubmission {
	answers := make(map[string]string, len(sub.Answers))
	for k, v := range sub.Answers {
		answers[k] = v
	}
	sub.Answers = answers
	sub.TimeLimitMinutes = cloneInt(sub.TimeLimitMinutes)
	sub.SubmittedAt = cloneTime(sub.SubmittedAt)
	sub.ElapsedSeconds = cloneInt(sub.ElapsedSeconds)
	sub.Score = cloneInt(sub.Score)
	sub.MaxScore = cloneInt(sub.MaxScore)
	sub.GradedAt = cloneTime(sub.GradedAt)
	return sub
}

func cloneAssignment(sub domain.AssignmentSubmission) domain.AssignmentSubmission {
	sub.Score = cloneInt(sub.Score)
	sub.GradedAt = cloneTime(sub.GradedAt)
	return sub
}

func cloneRegistration(reg domain.Registration) domain.Registration {
	reg.AttendedAt = cloneTime(reg.AttendedAt)
	return reg
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
