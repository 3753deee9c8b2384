package app_test

import (
	"context"
	"testing"
	"time"

	"engagement-service/internal/app"
	"engagement-service/internal/clock"
	"engagement-service/internal/domain"
	"engagement-service/internal/infra/memory"
	"engagement-service/internal/logger"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

const (
	owner    = "org-1"
	stranger = "org-2"
	alice    = "cand-alice"
	bob      = "cand-bob"
)

type harness struct {
	clock         *clock.Manual
	store         *memory.Store
	objects       *memory.ObjectStore
	events        *app.EventService
	quizzes       *app.QuizEngine
	assignments   *app.AssignmentService
	registrations *app.RegistrationService
	grading       *app.GradingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewManual(t0)
	store := memory.NewStore()
	objects := memory.NewObjectStore()
	locks := memory.NewLocker()
	log := logger.Nop()

	quizzes := app.NewQuizEngine(store, locks, clk, log)
	return &harness{
		clock:         clk,
		store:         store,
		objects:       objects,
		events:        app.NewEventService(store, locks, clk, log),
		quizzes:       quizzes,
		assignments:   app.NewAssignmentService(store, objects, locks, clk, log, app.DefaultAssignmentDefaults()),
		registrations: app.NewRegistrationService(store, clk, log),
		grading:       app.NewGradingService(store, quizzes, locks, clk, log),
	}
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func (h *harness) publish(t *testing.T, def domain.EventDefinition) domain.Event {
	t.Helper()
	ctx := context.Background()
	if def.Title == "" {
		def.Title = string(def.Type) + " event"
	}
	event, err := h.events.Create(ctx, owner, def)
	require.NoError(t, err)
	event, err = h.events.Publish(ctx, owner, event.ID)
	require.NoError(t, err)
	return event
}

// quiz publishes a quiz with the given time limit and questions worth the given
// points, each a two-option multiple choice whose correct answer is "0".
func (h *harness) quiz(t *testing.T, limitMinutes int, points ...int) (domain.Event, []domain.Question) {
	t.Helper()
	ctx := context.Background()
	def := domain.EventDefinition{Type: domain.EventTypeQuiz, Title: "Screening quiz"}
	if limitMinutes > 0 {
		def.TimeLimitMinutes = intPtr(limitMinutes)
	}
	event, err := h.events.Create(ctx, owner, def)
	require.NoError(t, err)

	questions := make([]domain.Question, 0, len(points))
	for _, p := range points {
		q, err := h.events.AddQuestion(ctx, owner, event.ID, domain.QuestionDefinition{
			Text:          "pick one",
			Kind:          domain.QuestionMultipleChoice,
			Options:       []string{"right", "wrong"},
			CorrectOption: "0",
			Points:        p,
		})
		require.NoError(t, err)
		questions = append(questions, q)
	}
	event, err = h.events.Publish(ctx, owner, event.ID)
	require.NoError(t, err)
	return event, questions
}

func (h *harness) assignment(t *testing.T, fields domain.EventFields) domain.Event {
	t.Helper()
	return h.publish(t, domain.EventDefinition{Type: domain.EventTypeAssignment, Title: "Take-home", EventFields: fields})
}

func (h *harness) webinar(t *testing.T, start, end time.Time) domain.Event {
	t.Helper()
	return h.publish(t, domain.EventDefinition{
		Type:  domain.EventTypeWebinar,
		Title: "Info session",
		EventFields: domain.EventFields{
			MeetingURL: strPtr("https://meet.example.com/abc"),
			StartsAt:   timePtr(start),
			EndsAt:     timePtr(end),
		},
	})
}

func strPtr(s string) *string { return &s }
