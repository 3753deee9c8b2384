package http

import (
	"net/http"

	"engagement-service/internal/domain"
	"github.com/cockroachdb/errors"
)

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request, userID string) {
	var def domain.EventDefinition
	if err := decode(r, &def); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid JSON: "+err.Error())
		return
	}
	event, err := s.events.Create(r.Context(), userID, def)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, event)
}

func (s *Server) listOwnedEvents(w http.ResponseWriter, r *http.Request, userID string) {
	events, err := s.events.ListOwned(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, events)
}

// discoverEvents handles GET /api/events?jobId=&type=
func (s *Server) discoverEvents(w http.ResponseWriter, r *http.Request) {
	filter := domain.EventFilter{
		JobID: r.URL.Query().Get("jobId"),
		Type:  domain.EventType(r.URL.Query().Get("type")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		respondError(w, http.StatusBadRequest, "validation", "unknown event type "+string(filter.Type))
		return
	}
	events, err := s.events.Discover(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, events)
}

// getEvent serves the published event to anyone and a draft to its owner.
func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	event, err := s.events.GetPublished(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		if userID := callerID(r); userID != "" {
			event, err = s.events.Get(r.Context(), userID, id)
		}
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, event)
}

func (s *Server) updateEvent(w http.ResponseWriter, r *http.Request, userID string) {
	var patch domain.EventPatch
	if err := decode(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid JSON: "+err.Error())
		return
	}
	event, err := s.events.Update(r.Context(), userID, r.PathValue("id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, event)
}

func (s *Server) publishEvent(w http.ResponseWriter, r *http.Request, userID string) {
	event, err := s.events.Publish(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, event)
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.events.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type questionsResponse struct {
	Questions   []domain.Question `json:"questions"`
	TotalPoints int               `json:"totalPoints"`
}

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request, userID string) {
	questions, err := s.events.ListQuestions(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	total := 0
	for _, q := range questions {
		total += q.Points
	}
	respond(w, http.StatusOK, questionsResponse{Questions: questions, TotalPoints: total})
}

func (s *Server) addQuestion(w http.ResponseWriter, r *http.Request, userID string) {
	var def domain.QuestionDefinition
	if err := decode(r, &def); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid JSON: "+err.Error())
		return
	}
	q, err := s.events.AddQuestion(r.Context(), userID, r.PathValue("id"), def)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, q)
}

type reorderRequest struct {
	QuestionIDs []string `json:"questionIds"`
}

func (s *Server) reorderQuestions(w http.ResponseWriter, r *http.Request, userID string) {
	var req reorderRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid JSON: "+err.Error())
		return
	}
	questions, err := s.events.ReorderQuestions(r.Context(), userID, r.PathValue("id"), req.QuestionIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, questions)
}

func (s *Server) updateQuestion(w http.ResponseWriter, r *http.Request, userID string) {
	var def domain.QuestionDefinition
	if err := decode(r, &def); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid JSON: "+err.Error())
		return
	}
	q, err := s.events.UpdateQuestion(r.Context(), userID, r.PathValue("id"), def)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, q)
}

func (s *Server) deleteQuestion(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.events.DeleteQuestion(r.Context(), userID, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// webinars

type statusResponse struct {
	EventID string               `json:"eventId"`
	Status  domain.WebinarStatus `json:"status"`
}

func (s *Server) webinarStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := s.registrations.Status(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, statusResponse{EventID: id, Status: status})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, userID string) {
	reg, err := s.registrations.Register(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.failWith(w, r, err, reg)
		return
	}
	respond(w, http.StatusCreated, reg)
}

func (s *Server) listRegistrations(w http.ResponseWriter, r *http.Request, userID string) {
	regs, err := s.registrations.ListForEvent(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, regs)
}

func (s *Server) myRegistration(w http.ResponseWriter, r *http.Request, userID string) {
	reg, err := s.registrations.Mine(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, reg)
}

func (s *Server) markAttended(w http.ResponseWriter, r *http.Request, userID string) {
	reg, err := s.registrations.MarkAttended(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, reg)
}
