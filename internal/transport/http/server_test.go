package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"engagement-service/internal/app"
	"engagement-service/internal/clock"
	"engagement-service/internal/domain"
	"engagement-service/internal/infra/memory"
	"engagement-service/internal/logger"
)

const (
	author    = "org-1"
	candidate = "cand-1"
)

type testEnv struct {
	clock  *clock.Manual
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	locks := memory.NewLocker()
	log := logger.Nop()

	quizzes := app.NewQuizEngine(store, locks, clk, log)
	svc := Services{
		Events:        app.NewEventService(store, locks, clk, log),
		Quizzes:       quizzes,
		Assignments:   app.NewAssignmentService(store, memory.NewObjectStore(), locks, clk, log, app.DefaultAssignmentDefaults()),
		Registrations: app.NewRegistrationService(store, clk, log),
		Grading:       app.NewGradingService(store, quizzes, locks, clk, log),
	}
	srv := httptest.NewServer(NewServer(svc, NewWSHandler(quizzes, log), log, 0).Routes())
	t.Cleanup(srv.Close)
	return &testEnv{clock: clk, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, raw)
	}
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

// publishQuiz creates a quiz with two one-point questions whose correct option is "0".
func (e *testEnv) publishQuiz(t *testing.T, limitMinutes int) (string, []string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/events", author, map[string]any{
		"type": "quiz", "title": "Screening", "jobId": "job-1", "timeLimitMinutes": limitMinutes,
	})
	expectStatus(t, resp, http.StatusCreated)
	event := decodeBody[domain.Event](t, resp)

	var ids []string
	for i := 0; i < 2; i++ {
		resp := e.do(t, http.MethodPost, "/api/events/"+event.ID+"/questions", author, map[string]any{
			"text": "pick", "kind": "multiple_choice", "options": []string{"a", "b"}, "correctOption": "0", "points": 1,
		})
		expectStatus(t, resp, http.StatusCreated)
		ids = append(ids, decodeBody[domain.Question](t, resp).ID)
	}
	expectStatus(t, e.do(t, http.MethodPost, "/api/events/"+event.ID+"/publish", author, nil), http.StatusOK)
	return event.ID, ids
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.do(t, http.MethodGet, "/healthz", "", nil), http.StatusOK)
}

func TestMissingCallerIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/events", "", map[string]any{"type": "quiz", "title": "x"})
	expectStatus(t, resp, http.StatusUnauthorized)
	body := decodeBody[errorBody](t, resp)
	if body.Code != "unauthenticated" {
		t.Fatalf("expected unauthenticated, got %s", body.Code)
	}
}

func TestEventLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/events", author, map[string]any{"type": "quiz", "title": "x", "dueAt": "2026-04-01T00:00:00Z"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/api/events", author, map[string]any{"type": "quiz", "title": "x", "bogus": true})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/api/events", author, map[string]any{"type": "quiz", "title": "Draft", "jobId": "job-9"})
	expectStatus(t, resp, http.StatusCreated)
	event := decodeBody[domain.Event](t, resp)

	// drafts are visible to the owner only
	expectStatus(t, env.do(t, http.MethodGet, "/api/events/"+event.ID, "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/events/"+event.ID, "org-2", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/events/"+event.ID, author, nil), http.StatusOK)

	resp = env.do(t, http.MethodGet, "/api/events?jobId=job-9", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if listed := decodeBody[[]domain.Event](t, resp); len(listed) != 0 {
		t.Fatalf("expected no published events, got %d", len(listed))
	}

	resp = env.do(t, http.MethodPatch, "/api/events/"+event.ID, author, map[string]any{"title": "Renamed"})
	expectStatus(t, resp, http.StatusOK)
	if got := decodeBody[domain.Event](t, resp); got.Title != "Renamed" {
		t.Fatalf("expected renamed title, got %q", got.Title)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/events/"+event.ID+"/publish", author, nil), http.StatusOK)
	resp = env.do(t, http.MethodGet, "/api/events?jobId=job-9&type=quiz", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if listed := decodeBody[[]domain.Event](t, resp); len(listed) != 1 {
		t.Fatalf("expected one published event, got %d", len(listed))
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/events?type=meetup", "", nil), http.StatusBadRequest)

	resp = env.do(t, http.MethodGet, "/api/events/mine", author, nil)
	expectStatus(t, resp, http.StatusOK)
	if mine := decodeBody[[]domain.Event](t, resp); len(mine) != 1 {
		t.Fatalf("expected one owned event, got %d", len(mine))
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/events/"+event.ID, "org-2", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/events/"+event.ID, author, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/api/events/"+event.ID, author, nil), http.StatusNotFound)
}

func TestQuestionsOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	quizID, ids := env.publishQuiz(t, 10)

	resp := env.do(t, http.MethodGet, "/api/events/"+quizID+"/questions", author, nil)
	expectStatus(t, resp, http.StatusOK)
	listed := decodeBody[questionsResponse](t, resp)
	if listed.TotalPoints != 2 || len(listed.Questions) != 2 {
		t.Fatalf("unexpected question set %+v", listed)
	}

	resp = env.do(t, http.MethodPut, "/api/events/"+quizID+"/questions/order", author, map[string]any{"questionIds": []string{ids[1], ids[0]}})
	expectStatus(t, resp, http.StatusOK)
	reordered := decodeBody[[]domain.Question](t, resp)
	if reordered[0].ID != ids[1] || reordered[0].Position != 0 {
		t.Fatalf("unexpected order %+v", reordered)
	}

	resp = env.do(t, http.MethodPut, "/api/questions/"+ids[0], author, map[string]any{
		"text": "rewritten", "kind": "short_answer", "points": 3,
	})
	expectStatus(t, resp, http.StatusOK)

	expectStatus(t, env.do(t, http.MethodDelete, "/api/questions/"+ids[1], author, nil), http.StatusNoContent)
	resp = env.do(t, http.MethodGet, "/api/events/"+quizID+"/questions", author, nil)
	expectStatus(t, resp, http.StatusOK)
	listed = decodeBody[questionsResponse](t, resp)
	if len(listed.Questions) != 1 || listed.Questions[0].Position != 0 || listed.TotalPoints != 3 {
		t.Fatalf("unexpected question set after delete %+v", listed)
	}
}

func TestQuizOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	quizID, ids := env.publishQuiz(t, 10)

	resp := env.do(t, http.MethodGet, "/api/events/"+quizID+"/quiz/state", candidate, nil)
	expectStatus(t, resp, http.StatusOK)
	if state := decodeBody[domain.SessionView](t, resp); state.State != domain.SessionNotStarted {
		t.Fatalf("expected not_started, got %s", state.State)
	}

	resp = env.do(t, http.MethodPost, "/api/events/"+quizID+"/quiz/start", candidate, nil)
	expectStatus(t, resp, http.StatusCreated)
	view := decodeBody[domain.SessionView](t, resp)
	subID := view.Submission.ID

	resp = env.do(t, http.MethodPost, "/api/events/"+quizID+"/quiz/start", candidate, nil)
	expectStatus(t, resp, http.StatusConflict)
	conflict := decodeBody[struct {
		Code     string             `json:"code"`
		Existing domain.SessionView `json:"existing"`
	}](t, resp)
	if conflict.Code != "already_started" || conflict.Existing.Submission.ID != subID {
		t.Fatalf("expected the existing attempt back, got %+v", conflict)
	}

	resp = env.do(t, http.MethodGet, "/api/quiz-submissions/"+subID+"/paper", candidate, nil)
	expectStatus(t, resp, http.StatusOK)
	raw, _ := io.ReadAll(resp.Body)
	if bytes.Contains(raw, []byte("correctOption")) {
		t.Fatalf("paper leaks the answer key: %s", raw)
	}

	expectStatus(t, env.do(t, http.MethodPut, "/api/quiz-submissions/"+subID+"/answers/"+ids[0], candidate, map[string]any{"answer": "0"}), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPut, "/api/quiz-submissions/"+subID+"/answers/bogus", candidate, map[string]any{"answer": "0"}), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPut, "/api/quiz-submissions/"+subID+"/answers/"+ids[0], "cand-2", map[string]any{"answer": "1"}), http.StatusNotFound)

	env.clock.Advance(11 * time.Minute)

	resp = env.do(t, http.MethodPut, "/api/quiz-submissions/"+subID+"/answers/"+ids[1], candidate, map[string]any{"answer": "0"})
	expectStatus(t, resp, http.StatusConflict)
	late := decodeBody[struct {
		Code     string                `json:"code"`
		Existing domain.QuizSubmission `json:"existing"`
	}](t, resp)
	if late.Code != "already_submitted" || !late.Existing.ForcedSubmit {
		t.Fatalf("expected forced submission back, got %+v", late)
	}
	if _, ok := late.Existing.Answers[ids[1]]; ok {
		t.Fatalf("late answer was recorded")
	}

	resp = env.do(t, http.MethodPost, "/api/quiz-submissions/"+subID+"/submit", candidate, nil)
	expectStatus(t, resp, http.StatusOK)
	sub := decodeBody[domain.QuizSubmission](t, resp)
	if *sub.Score != 1 || *sub.ElapsedSeconds != 600 {
		t.Fatalf("unexpected result score=%d elapsed=%d", *sub.Score, *sub.ElapsedSeconds)
	}

	resp = env.do(t, http.MethodGet, "/api/events/"+quizID+"/quiz/submissions", author, nil)
	expectStatus(t, resp, http.StatusOK)
	if subs := decodeBody[[]domain.QuizSubmission](t, resp); len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/quiz-submissions/"+subID+"/grade", author, map[string]any{}), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/quiz-submissions/"+subID+"/grade", author, map[string]any{"score": 3}), http.StatusUnprocessableEntity)
	expectStatus(t, env.do(t, http.MethodPost, "/api/quiz-submissions/"+subID+"/grade", author, map[string]any{"score": 2}), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/api/quiz-submissions/"+subID+"/grade", author, map[string]any{"score": 2}), http.StatusConflict)

	resp = env.do(t, http.MethodGet, "/api/quiz-submissions/"+subID, candidate, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeBody[domain.QuizSubmission](t, resp); *got.Score != 2 {
		t.Fatalf("expected graded score 2, got %d", *got.Score)
	}
}

func TestWebinarOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/events", author, map[string]any{
		"type": "webinar", "title": "Info", "meetingUrl": "https://meet.example.com/x",
		"startsAt": "2026-03-02T11:00:00Z", "endsAt": "2026-03-02T12:00:00Z",
	})
	expectStatus(t, resp, http.StatusCreated)
	event := decodeBody[domain.Event](t, resp)
	expectStatus(t, env.do(t, http.MethodPost, "/api/events/"+event.ID+"/publish", author, nil), http.StatusOK)

	resp = env.do(t, http.MethodGet, "/api/events/"+event.ID+"/status", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if status := decodeBody[statusResponse](t, resp); status.Status != domain.WebinarUpcoming {
		t.Fatalf("expected upcoming, got %s", status.Status)
	}

	resp = env.do(t, http.MethodPost, "/api/events/"+event.ID+"/registrations", candidate, nil)
	expectStatus(t, resp, http.StatusCreated)
	reg := decodeBody[domain.Registration](t, resp)

	resp = env.do(t, http.MethodPost, "/api/events/"+event.ID+"/registrations", candidate, nil)
	expectStatus(t, resp, http.StatusConflict)
	dup := decodeBody[struct {
		Code     string              `json:"code"`
		Existing domain.Registration `json:"existing"`
	}](t, resp)
	if dup.Code != "already_registered" || dup.Existing.ID != reg.ID {
		t.Fatalf("expected existing registration, got %+v", dup)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/events/"+event.ID+"/registrations/me", candidate, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/events/"+event.ID+"/registrations", "org-2", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPost, "/api/registrations/"+reg.ID+"/attended", author, nil), http.StatusOK)

	env.clock.Advance(3 * time.Hour)
	resp = env.do(t, http.MethodPost, "/api/events/"+event.ID+"/registrations", "cand-2", nil)
	expectStatus(t, resp, http.StatusConflict)
	if body := decodeBody[errorBody](t, resp); body.Code != "event_closed" || body.Existing != nil {
		t.Fatalf("unexpected body %+v", body)
	}
}

func multipartUpload(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, eventID, user, filename string, data []byte) *http.Response {
	t.Helper()
	body, contentType := multipartUpload(t, filename, data)
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/events/"+eventID+"/assignment/submissions", body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(UserHeader, user)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAssignmentOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/events", author, map[string]any{
		"type": "assignment", "title": "Take-home", "allowedExtensions": []string{"pdf"}, "maxFileSizeMb": 1,
	})
	expectStatus(t, resp, http.StatusCreated)
	event := decodeBody[domain.Event](t, resp)
	expectStatus(t, env.do(t, http.MethodPost, "/api/events/"+event.ID+"/publish", author, nil), http.StatusOK)

	expectStatus(t, env.upload(t, event.ID, candidate, "cv.docx", []byte("x")), http.StatusUnsupportedMediaType)
	expectStatus(t, env.upload(t, event.ID, candidate, "cv.pdf", bytes.Repeat([]byte("x"), 2<<20)), http.StatusRequestEntityTooLarge)

	content := []byte("%PDF-1.7 hello")
	resp = env.upload(t, event.ID, candidate, "cv.pdf", content)
	expectStatus(t, resp, http.StatusCreated)
	sub := decodeBody[domain.AssignmentSubmission](t, resp)

	resp = env.upload(t, event.ID, candidate, "other.pdf", []byte("y"))
	expectStatus(t, resp, http.StatusConflict)
	dup := decodeBody[struct {
		Existing domain.AssignmentSubmission `json:"existing"`
	}](t, resp)
	if dup.Existing.ID != sub.ID {
		t.Fatalf("expected the first submission back, got %+v", dup.Existing)
	}

	resp = env.do(t, http.MethodGet, "/api/assignment-submissions/"+sub.ID+"/file", author, nil)
	expectStatus(t, resp, http.StatusOK)
	got, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(got, content) {
		t.Fatalf("downloaded %q, want %q", got, content)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename=cv.pdf` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/assignment-submissions/"+sub.ID+"/file", "cand-2", nil), http.StatusNotFound)

	expectStatus(t, env.do(t, http.MethodGet, "/api/events/"+event.ID+"/assignment/submissions/me", candidate, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/events/"+event.ID+"/assignment/submissions", author, nil), http.StatusOK)

	expectStatus(t, env.do(t, http.MethodPost, "/api/assignment-submissions/"+sub.ID+"/grade", author, map[string]any{"score": 101}), http.StatusUnprocessableEntity)
	resp = env.do(t, http.MethodPost, "/api/assignment-submissions/"+sub.ID+"/grade", author, map[string]any{"score": 88, "feedback": "solid"})
	expectStatus(t, resp, http.StatusOK)
	if graded := decodeBody[domain.AssignmentSubmission](t, resp); *graded.Score != 88 || graded.Feedback != "solid" {
		t.Fatalf("unexpected grade %+v", graded)
	}
}

func TestUploadWithoutFilePart(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/events/x/assignment/submissions", candidate, map[string]any{"file": "nope"})
	expectStatus(t, resp, http.StatusBadRequest)
}
