package http

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"engagement-service/internal/domain"
	"github.com/cockroachdb/errors"
)

// quizzes

func (s *Server) startQuiz(w http.ResponseWriter, r *http.Request, userID string) {
	sub, err := s.quizzes.Start(r.Context(), r.PathValue("id"), userID)
	if errors.Is(err, domain.ErrAlreadyStarted) {
		// resuming is the normal reconnect path, so hand back the live view
		view, pollErr := s.quizzes.Poll(r.Context(), sub.ID, userID)
		if pollErr != nil {
			s.fail(w, r, pollErr)
			return
		}
		s.failWith(w, r, err, view)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.quizzes.Poll(r.Context(), sub.ID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, view)
}

func (s *Server) quizState(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := s.quizzes.State(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) listQuizSubmissions(w http.ResponseWriter, r *http.Request, userID string) {
	subs, err := s.quizzes.ListForEvent(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, subs)
}

func (s *Server) getQuizSubmission(w http.ResponseWriter, r *http.Request, userID string) {
	sub, err := s.quizzes.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, sub)
}

func (s *Server) pollQuiz(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := s.quizzes.Poll(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) quizPaper(w http.ResponseWriter, r *http.Request, userID string) {
	paper, err := s.quizzes.Paper(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, paper)
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) saveAnswer(w http.ResponseWriter, r *http.Request, userID string) {
	var req answerRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid JSON: "+err.Error())
		return
	}
	sub, err := s.quizzes.SaveAnswer(r.Context(), r.PathValue("id"), userID, r.PathValue("questionId"), req.Answer)
	if err != nil {
		s.failWith(w, r, err, sub)
		return
	}
	respond(w, http.StatusOK, sub)
}

func (s *Server) submitQuiz(w http.ResponseWriter, r *http.Request, userID string) {
	sub, err := s.quizzes.Submit(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, sub)
}

type gradeRequest struct {
	Score    *int   `json:"score"`
	Feedback string `json:"feedback"`
}

func (s *Server) gradeQuiz(w http.ResponseWriter, r *http.Request, userID string) {
	var req gradeRequest
	if err := decode(r, &req); err != nil || req.Score == nil {
		respondError(w, http.StatusBadRequest, "validation", "body must be {\"score\": <int>}")
		return
	}
	sub, err := s.grading.GradeQuiz(r.Context(), userID, r.PathValue("id"), *req.Score)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, sub)
}

// assignments

// submitAssignment handles a multipart upload with the file in the "file" part.
func (s *Server) submitAssignment(w http.ResponseWriter, r *http.Request, userID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes")
			return
		}
		respondError(w, http.StatusBadRequest, "validation", "multipart form with a \"file\" part is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "could not read upload")
		return
	}

	sub, err := s.assignments.Submit(r.Context(), r.PathValue("id"), userID, domain.Upload{
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		s.failWith(w, r, err, sub)
		return
	}
	respond(w, http.StatusCreated, sub)
}

func (s *Server) listAssignmentSubmissions(w http.ResponseWriter, r *http.Request, userID string) {
	subs, err := s.assignments.ListForEvent(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, subs)
}

func (s *Server) myAssignmentSubmission(w http.ResponseWriter, r *http.Request, userID string) {
	sub, err := s.assignments.Mine(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, sub)
}

func (s *Server) getAssignmentSubmission(w http.ResponseWriter, r *http.Request, userID string) {
	sub, err := s.assignments.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, sub)
}

func (s *Server) downloadAssignment(w http.ResponseWriter, r *http.Request, userID string) {
	data, filename, err := s.assignments.Download(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) gradeAssignment(w http.ResponseWriter, r *http.Request, userID string) {
	var req gradeRequest
	if err := decode(r, &req); err != nil || req.Score == nil {
		respondError(w, http.StatusBadRequest, "validation", "body must be {\"score\": <int>, \"feedback\": <string>}")
		return
	}
	sub, err := s.grading.GradeAssignment(r.Context(), userID, r.PathValue("id"), *req.Score, req.Feedback)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, sub)
}
