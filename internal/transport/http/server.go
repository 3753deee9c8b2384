package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"engagement-service/internal/app"
	"engagement-service/internal/domain"
	"engagement-service/internal/logger"
	"github.com/cockroachdb/errors"
)

// UserHeader carries the caller's id. Authentication happens upstream.
const UserHeader = "X-User-ID"

// Services groups the use cases the HTTP layer exposes.
type Services struct {
	Events        *app.EventService
	Quizzes       *app.QuizEngine
	Assignments   *app.AssignmentService
	Registrations *app.RegistrationService
	Grading       *app.GradingService
}

// Server holds shared dependencies for all handlers.
type Server struct {
	events         *app.EventService
	quizzes        *app.QuizEngine
	assignments    *app.AssignmentService
	registrations  *app.RegistrationService
	grading        *app.GradingService
	ws             *WSHandler
	log            *logger.Logger
	maxUploadBytes int64
}

func NewServer(svc Services, ws *WSHandler, log *logger.Logger, maxUploadBytes int64) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 << 20
	}
	return &Server{
		events:         svc.Events,
		quizzes:        svc.Quizzes,
		assignments:    svc.Assignments,
		registrations:  svc.Registrations,
		grading:        svc.Grading,
		ws:             ws,
		log:            log.With("component", "http"),
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	// authoring
	mux.HandleFunc("POST /api/events", s.withUser(s.createEvent))
	mux.HandleFunc("GET /api/events/mine", s.withUser(s.listOwnedEvents))
	mux.HandleFunc("GET /api/events", s.discoverEvents)
	mux.HandleFunc("GET /api/events/{id}", s.getEvent)
	mux.HandleFunc("PATCH /api/events/{id}", s.withUser(s.updateEvent))
	mux.HandleFunc("POST /api/events/{id}/publish", s.withUser(s.publishEvent))
	mux.HandleFunc("DELETE /api/events/{id}", s.withUser(s.deleteEvent))
	mux.HandleFunc("GET /api/events/{id}/questions", s.withUser(s.listQuestions))
	mux.HandleFunc("POST /api/events/{id}/questions", s.withUser(s.addQuestion))
	mux.HandleFunc("PUT /api/events/{id}/questions/order", s.withUser(s.reorderQuestions))
	mux.HandleFunc("PUT /api/questions/{id}", s.withUser(s.updateQuestion))
	mux.HandleFunc("DELETE /api/questions/{id}", s.withUser(s.deleteQuestion))

	// webinars
	mux.HandleFunc("GET /api/events/{id}/status", s.webinarStatus)
	mux.HandleFunc("POST /api/events/{id}/registrations", s.withUser(s.register))
	mux.HandleFunc("GET /api/events/{id}/registrations", s.withUser(s.listRegistrations))
	mux.HandleFunc("GET /api/events/{id}/registrations/me", s.withUser(s.myRegistration))
	mux.HandleFunc("POST /api/registrations/{id}/attended", s.withUser(s.markAttended))

	// quizzes
	mux.HandleFunc("POST /api/events/{id}/quiz/start", s.withUser(s.startQuiz))
	mux.HandleFunc("GET /api/events/{id}/quiz/state", s.withUser(s.quizState))
	mux.HandleFunc("GET /api/events/{id}/quiz/submissions", s.withUser(s.listQuizSubmissions))
	mux.HandleFunc("GET /api/quiz-submissions/{id}", s.withUser(s.getQuizSubmission))
	mux.HandleFunc("GET /api/quiz-submissions/{id}/session", s.withUser(s.pollQuiz))
	mux.HandleFunc("GET /api/quiz-submissions/{id}/paper", s.withUser(s.quizPaper))
	mux.HandleFunc("PUT /api/quiz-submissions/{id}/answers/{questionId}", s.withUser(s.saveAnswer))
	mux.HandleFunc("POST /api/quiz-submissions/{id}/submit", s.withUser(s.submitQuiz))
	mux.HandleFunc("POST /api/quiz-submissions/{id}/grade", s.withUser(s.gradeQuiz))

	// assignments
	mux.HandleFunc("POST /api/events/{id}/assignment/submissions", s.withUser(s.submitAssignment))
	mux.HandleFunc("GET /api/events/{id}/assignment/submissions", s.withUser(s.listAssignmentSubmissions))
	mux.HandleFunc("GET /api/events/{id}/assignment/submissions/me", s.withUser(s.myAssignmentSubmission))
	mux.HandleFunc("GET /api/assignment-submissions/{id}", s.withUser(s.getAssignmentSubmission))
	mux.HandleFunc("GET /api/assignment-submissions/{id}/file", s.withUser(s.downloadAssignment))
	mux.HandleFunc("POST /api/assignment-submissions/{id}/grade", s.withUser(s.gradeAssignment))

	if s.ws != nil {
		mux.HandleFunc("GET /ws/quiz", s.ws.ServeWS)
	}
	return mux
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// withUser rejects requests that carry no caller id.
func (s *Server) withUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := callerID(r)
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing "+UserHeader+" header")
			return
		}
		h(w, r, userID)
	}
}

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Existing any    `json:"existing,omitempty"`
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respond(w, status, errorBody{Error: msg, Code: code})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type errorKind struct {
	err    error
	status int
	code   string
}

var errorKinds = []errorKind{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrValidation, http.StatusBadRequest, "validation"},
	{domain.ErrInvalidQuestion, http.StatusBadRequest, "invalid_question"},
	{domain.ErrInvalidScore, http.StatusUnprocessableEntity, "invalid_score"},
	{domain.ErrUnsupportedType, http.StatusUnsupportedMediaType, "unsupported_type"},
	{domain.ErrTooLarge, http.StatusRequestEntityTooLarge, "too_large"},
	{domain.ErrAlreadyStarted, http.StatusConflict, "already_started"},
	{domain.ErrAlreadyRegistered, http.StatusConflict, "already_registered"},
	{domain.ErrAlreadySubmitted, http.StatusConflict, "already_submitted"},
	{domain.ErrAlreadyGraded, http.StatusConflict, "already_graded"},
	{domain.ErrEventClosed, http.StatusConflict, "event_closed"},
	{domain.ErrDeadlinePassed, http.StatusConflict, "deadline_passed"},
}

func classify(err error) (int, string, bool) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.code, true
		}
	}
	return http.StatusInternalServerError, "internal", false
}

// fail writes err as a JSON error. Known kinds carry their detail to the client;
// anything else is logged and reported generically.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.failWith(w, r, err, nil)
}

// failWith is fail plus the record that accompanies a soft error.
func (s *Server) failWith(w http.ResponseWriter, r *http.Request, err error, existing any) {
	status, code, known := classify(err)
	if !known {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, status, code, "internal error")
		return
	}
	body := errorBody{Error: err.Error(), Code: code}
	if domain.IsSoft(err) {
		body.Existing = existing
	}
	respond(w, status, body)
}
