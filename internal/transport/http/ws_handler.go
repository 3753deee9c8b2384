package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"engagement-service/internal/app"
	"engagement-service/internal/domain"
	"engagement-service/internal/logger"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
)

// WSHandler runs a participant's quiz attempt over a websocket. The attempt
// lives in the store; the socket only relays calls, so a dropped connection
// loses nothing and reconnecting resumes the same attempt.
type WSHandler struct {
	quizzes  *app.QuizEngine
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(quizzes *app.QuizEngine, log *logger.Logger) *WSHandler {
	return &WSHandler{
		quizzes: quizzes,
		log:     log.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sessionPayload struct {
	domain.SessionView
	Questions []domain.QuestionView `json:"questions,omitempty"`
}

// ServeWS upgrades GET /ws/quiz?eventId=... and starts or resumes the caller's
// attempt. Browsers cannot set headers on a websocket handshake, so the caller
// id may also come from the userId query parameter.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	userID := callerID(r)
	if userID == "" {
		userID = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	if eventID == "" || userID == "" {
		http.Error(w, "missing eventId or user id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.quizzes.Start(ctx, eventID, userID)
	if err != nil && !errors.Is(err, domain.ErrAlreadyStarted) {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: wsError(err)})
		return
	}
	submissionID := sub.ID
	log := h.log.With("event_id", eventID, "submission_id", submissionID)

	view, err := h.quizzes.Poll(ctx, submissionID, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: wsError(err)})
		return
	}
	if view.State == domain.SessionSubmitted {
		_ = conn.WriteJSON(outboundMessage[domain.QuizSubmission]{Type: "submitted", Payload: view.Submission})
		return
	}
	paper, err := h.quizzes.Paper(ctx, submissionID, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: wsError(err)})
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	timerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", "error", err)
				return
			}
		}
	}()

	// The lazy check on every call is what actually enforces the deadline; this
	// timer only pushes the closed attempt to a client that went quiet.
	go func() {
		defer close(timerDone)
		if view.RemainingSeconds == nil {
			return
		}
		timer := time.NewTimer(time.Duration(*view.RemainingSeconds)*time.Second + 250*time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-closeSignals:
			return
		}
		polled, err := h.quizzes.Poll(ctx, submissionID, userID)
		if err != nil || polled.State != domain.SessionSubmitted {
			return
		}
		select {
		case send <- outboundMessage[any]{Type: "submitted", Payload: polled.Submission}:
		case <-closeSignals:
		}
	}()

	send <- outboundMessage[any]{Type: "session", Payload: sessionPayload{SessionView: view, Questions: paper}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply := h.handle(ctx, inbound, submissionID, userID)
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	cancel()
	<-timerDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, inbound inboundMessage, submissionID, userID string) outboundMessage[any] {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
			return errorMessage(errorPayload{Code: "validation", Message: "invalid answer payload"})
		}
		sub, err := h.quizzes.SaveAnswer(ctx, submissionID, userID, payload.QuestionID, payload.Answer)
		if errors.Is(err, domain.ErrAlreadySubmitted) {
			return outboundMessage[any]{Type: "submitted", Payload: sub}
		}
		if err != nil {
			return errorMessage(wsError(err))
		}
		return h.session(ctx, submissionID, userID)
	case "poll":
		return h.session(ctx, submissionID, userID)
	case "submit":
		sub, err := h.quizzes.Submit(ctx, submissionID, userID)
		if err != nil {
			return errorMessage(wsError(err))
		}
		return outboundMessage[any]{Type: "submitted", Payload: sub}
	default:
		return errorMessage(errorPayload{Code: "validation", Message: "unsupported message type"})
	}
}

func (h *WSHandler) session(ctx context.Context, submissionID, userID string) outboundMessage[any] {
	view, err := h.quizzes.Poll(ctx, submissionID, userID)
	if err != nil {
		return errorMessage(wsError(err))
	}
	if view.State == domain.SessionSubmitted {
		return outboundMessage[any]{Type: "submitted", Payload: view.Submission}
	}
	return outboundMessage[any]{Type: "session", Payload: sessionPayload{SessionView: view}}
}

func errorMessage(p errorPayload) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: p}
}

func wsError(err error) errorPayload {
	_, code, known := classify(err)
	if !known {
		return errorPayload{Code: code, Message: "internal error"}
	}
	return errorPayload{Code: code, Message: err.Error()}
}
