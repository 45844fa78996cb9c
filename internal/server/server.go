// Package server exposes the HTTP surface: the chat events webhook plus a
// small operator API for inspecting pending actions and the audit trail.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/warden/internal/audit"
	"github.com/dativo-io/warden/internal/chat"
	"github.com/dativo-io/warden/internal/confirm"
	wardenotel "github.com/dativo-io/warden/internal/otel"
	"github.com/dativo-io/warden/internal/pending"
)

const (
	defaultTimeout = 60 * time.Second
	maxEventBody   = 1 << 20 // 1 MiB

	// dispatchTimeout bounds one asynchronous turn. The webhook itself
	// acks within the platform's 3-second deadline; the work continues
	// in the background under this budget.
	dispatchTimeout = 5 * time.Minute

	headerTimestamp = "X-Slack-Request-Timestamp"
	headerSignature = "X-Slack-Signature"
)

// MessageHandler runs one conversational turn.
type MessageHandler interface {
	HandleMessage(ctx context.Context, ev chat.MessageEvent) error
}

// AckHandler processes one acknowledgement event.
type AckHandler interface {
	HandleAck(ctx context.Context, ev confirm.AckEvent) error
}

// Server holds the HTTP dependencies.
type Server struct {
	router        *chi.Mux
	signingSecret string
	messages      MessageHandler
	acks          AckHandler
	pendingStore  *pending.Store
	auditStore    *audit.Store // optional
	botUser       string
	version       string
	startTime     time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAuditStore enables the /v1/audit listing.
func WithAuditStore(s *audit.Store) Option {
	return func(srv *Server) { srv.auditStore = s }
}

// WithBotUser sets the bot's own chat identity. The controller seeds the
// confirm/cancel reactions on every proposal, and those echo back as
// reaction events; knowing the bot user lets the webhook drop them
// instead of running them through the ack path.
func WithBotUser(id string) Option {
	return func(srv *Server) { srv.botUser = id }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(srv *Server) { srv.version = v }
}

// NewServer builds a Server.
func NewServer(signingSecret string, messages MessageHandler, acks AckHandler, pendingStore *pending.Store, opts ...Option) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		signingSecret: signingSecret,
		messages:      messages,
		acks:          acks,
		pendingStore:  pendingStore,
		version:       "dev",
		startTime:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(wardenotel.Middleware())
	r.Use(middleware.Timeout(defaultTimeout))

	r.Get("/health", s.handleHealth)

	// Chat events webhook: authenticated by request signature, not by an
	// API key.
	r.Post("/events", s.handleEvents)

	r.Get("/v1/pending", s.handlePendingList)
	r.Get("/v1/audit", s.handleAuditList)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// handleEvents verifies, parses and dispatches one chat event. Message and
// reaction events are handed off to background goroutines so the webhook
// can ack immediately.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	if err := chat.VerifySignature(s.signingSecret, r.Header.Get(headerTimestamp), r.Header.Get(headerSignature), body); err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("event_signature_rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	envelope, err := chat.ParseEvent(body)
	if err != nil {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	if envelope.Challenge != "" {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": envelope.Challenge})
		return
	}

	switch {
	case envelope.Message != nil:
		s.dispatch(func(ctx context.Context) {
			if err := s.messages.HandleMessage(ctx, *envelope.Message); err != nil {
				log.Error().Err(err).Str("channel", envelope.Message.Channel).Msg("message_dispatch_failed")
			}
		})

	case envelope.Reaction != nil:
		if s.botUser != "" && envelope.Reaction.User == s.botUser {
			break
		}
		ack, ok := ackFromReaction(*envelope.Reaction)
		if !ok {
			break
		}
		s.dispatch(func(ctx context.Context) {
			if err := s.acks.HandleAck(ctx, ack); err != nil {
				log.Error().Err(err).Str("coordinate", ack.Coordinate).Msg("ack_dispatch_failed")
			}
		})
	}

	w.WriteHeader(http.StatusOK)
}

// ackFromReaction maps a reaction event onto an acknowledgement. Reactions
// other than the two confirmation emoji are not acks.
func ackFromReaction(ev chat.ReactionEvent) (confirm.AckEvent, bool) {
	var signal confirm.Signal
	switch ev.Reaction {
	case chat.ReactionConfirm:
		signal = confirm.Positive
	case chat.ReactionCancel:
		signal = confirm.Negative
	default:
		return confirm.AckEvent{}, false
	}
	return confirm.AckEvent{
		Signal:     signal,
		Actor:      ev.User,
		Coordinate: chat.Coordinate(ev.Channel, ev.ItemTS),
		Channel:    ev.Channel,
		ThreadTS:   ev.ItemTS,
	}, true
}

func (s *Server) dispatch(fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Server) handlePendingList(w http.ResponseWriter, r *http.Request) {
	actions := s.pendingStore.List()
	out := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		out = append(out, map[string]any{
			"coordinate": a.Coordinate,
			"kind":       a.Kind,
			"owner":      a.Owner,
			"created_at": a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": out})
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		http.Error(w, "audit store not configured", http.StatusNotFound)
		return
	}
	events, err := s.auditStore.Recent(r.Context(), r.URL.Query().Get("kind"), 100)
	if err != nil {
		http.Error(w, "querying audit log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}
