package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"engagement-service/internal/domain"
	"github.com/gorilla/websocket"
)

func TestWebSocketAnswerFlow(t *testing.T) {
	env := newTestEnv(t)
	quizID, questionIDs := env.publishQuiz(t, 30)

	conn := env.dial(t, quizID, "cand-1", "")
	defer conn.Close()

	typ, raw := readNext(t, conn)
	if typ != "session" {
		t.Fatalf("expected session, got %s", typ)
	}
	var session sessionPayload
	if err := json.Unmarshal(raw, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.State != domain.SessionInProgress {
		t.Fatalf("expected in_progress, got %s", session.State)
	}
	if len(session.Questions) != len(questionIDs) {
		t.Fatalf("expected %d questions, got %d", len(questionIDs), len(session.Questions))
	}
	if session.RemainingSeconds == nil || *session.RemainingSeconds != 1800 {
		t.Fatalf("expected 1800 seconds remaining, got %v", session.RemainingSeconds)
	}

	send(t, conn, "answer", map[string]any{"questionId": questionIDs[0], "answer": "0"})
	typ, raw = readNext(t, conn)
	if typ != "session" {
		t.Fatalf("expected session after answer, got %s: %s", typ, raw)
	}
	if err := json.Unmarshal(raw, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.Submission.Answers[questionIDs[0]] != "0" {
		t.Fatalf("answer not recorded: %v", session.Submission.Answers)
	}

	send(t, conn, "submit", nil)
	typ, raw = readNext(t, conn)
	if typ != "submitted" {
		t.Fatalf("expected submitted, got %s", typ)
	}
	var sub domain.QuizSubmission
	if err := json.Unmarshal(raw, &sub); err != nil {
		t.Fatalf("decode submission: %v", err)
	}
	if sub.Score == nil || *sub.Score != 1 || *sub.MaxScore != 2 {
		t.Fatalf("unexpected score %v/%v", sub.Score, sub.MaxScore)
	}
}

func TestWebSocketReconnectResumesAttempt(t *testing.T) {
	env := newTestEnv(t)
	quizID, questionIDs := env.publishQuiz(t, 30)

	first := env.dial(t, quizID, "", "cand-1")
	readNext(t, first)
	send(t, first, "answer", map[string]any{"questionId": questionIDs[1], "answer": "1"})
	readNext(t, first)
	first.Close()

	env.clock.Advance(10 * time.Minute)

	second := env.dial(t, quizID, "", "cand-1")
	defer second.Close()
	typ, raw := readNext(t, second)
	if typ != "session" {
		t.Fatalf("expected session, got %s", typ)
	}
	var session sessionPayload
	if err := json.Unmarshal(raw, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.Submission.Answers[questionIDs[1]] != "1" {
		t.Fatalf("expected earlier answer to survive reconnect, got %v", session.Submission.Answers)
	}
	if *session.RemainingSeconds != 1200 {
		t.Fatalf("expected 1200 seconds remaining, got %d", *session.RemainingSeconds)
	}
}

func TestWebSocketExpiredAttemptIsSubmittedOnConnect(t *testing.T) {
	env := newTestEnv(t)
	quizID, _ := env.publishQuiz(t, 5)

	conn := env.dial(t, quizID, "cand-1", "")
	readNext(t, conn)
	conn.Close()

	env.clock.Advance(6 * time.Minute)

	again := env.dial(t, quizID, "cand-1", "")
	defer again.Close()
	typ, raw := readNext(t, again)
	if typ != "submitted" {
		t.Fatalf("expected submitted, got %s", typ)
	}
	var sub domain.QuizSubmission
	if err := json.Unmarshal(raw, &sub); err != nil {
		t.Fatalf("decode submission: %v", err)
	}
	if !sub.ForcedSubmit || *sub.ElapsedSeconds != 300 {
		t.Fatalf("expected forced submit at the deadline, got forced=%v elapsed=%v", sub.ForcedSubmit, sub.ElapsedSeconds)
	}
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	env := newTestEnv(t)
	quizID, _ := env.publishQuiz(t, 30)

	conn := env.dial(t, quizID, "cand-1", "")
	defer conn.Close()
	readNext(t, conn)

	send(t, conn, "dance", nil)
	typ, raw := readNext(t, conn)
	if typ != "error" {
		t.Fatalf("expected error, got %s", typ)
	}
	var e errorPayload
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != "validation" {
		t.Fatalf("expected validation code, got %s", e.Code)
	}

	send(t, conn, "answer", map[string]any{"questionId": "nope", "answer": "0"})
	typ, raw = readNext(t, conn)
	if typ != "error" {
		t.Fatalf("expected error, got %s", typ)
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != "invalid_question" {
		t.Fatalf("expected invalid_question, got %s", e.Code)
	}
}

func TestWebSocketUnknownQuiz(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t, "missing", "cand-1", "")
	defer conn.Close()
	typ, raw := readNext(t, conn)
	if typ != "error" {
		t.Fatalf("expected error, got %s", typ)
	}
	if !strings.Contains(string(raw), "not_found") {
		t.Fatalf("expected not_found, got %s", raw)
	}
}

func TestWebSocketNeedsCaller(t *testing.T) {
	env := newTestEnv(t)
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/quiz?eventId=x"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}

// dial opens a quiz socket, identifying the caller by header or query param.
func (e *testEnv) dial(t *testing.T, eventID, headerUser, queryUser string) *websocket.Conn {
	t.Helper()
	q := url.Values{"eventId": {eventID}}
	if queryUser != "" {
		q.Set("userId", queryUser)
	}
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/quiz?" + q.Encode()
	header := http.Header{}
	if headerUser != "" {
		header.Set(UserHeader, headerUser)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Type, msg.Payload
}
