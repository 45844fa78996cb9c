// Package agent runs the conversational turn: inbound safety checks, the
// LLM tool loop, and proposal registration. The controller itself is thin
// glue; every judgement call lives in the packages it wires together.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/warden/internal/access"
	"github.com/dativo-io/warden/internal/ats"
	"github.com/dativo-io/warden/internal/audit"
	"github.com/dativo-io/warden/internal/chat"
	"github.com/dativo-io/warden/internal/conversation"
	"github.com/dativo-io/warden/internal/llm"
	wardenotel "github.com/dativo-io/warden/internal/otel"
	"github.com/dativo-io/warden/internal/pending"
	"github.com/dativo-io/warden/internal/ratelimit"
	"github.com/dativo-io/warden/internal/redact"
	"github.com/dativo-io/warden/internal/sanitize"
)

var tracer = wardenotel.Tracer("github.com/dativo-io/warden/internal/agent")

// maxToolIterations bounds one turn's tool loop.
const maxToolIterations = 8

// resetCommand clears the thread's history instead of reaching the model.
const resetCommand = "reset"

// Poster is the slice of the chat client the controller needs.
type Poster interface {
	PostMessage(ctx context.Context, channel, threadTS, text string) (string, error)
	AddReaction(ctx context.Context, channel, ts, name string) error
}

// Auditor records safety events. May be satisfied by *audit.Store.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}

// ControllerConfig is the controller's dependency set, injected whole so
// tests can swap any collaborator.
type ControllerConfig struct {
	Provider  llm.Provider
	Model     string
	MaxTokens int

	ATS       *ats.Client
	Gate      *access.Gate
	Tier      access.Tier
	Redactor  *redact.Engine
	Sanitizer *sanitize.Sanitizer
	Limiter   *ratelimit.Limiter

	Conversations *conversation.Store
	Pending       *pending.Store

	Chat    Poster
	Auditor Auditor // optional

	// AllowedChannels restricts where the agent responds; empty allows
	// every channel. AdminUsers lists identities whose claimed role is
	// admin; the claim is trusted from the chat surface by design.
	AllowedChannels []string
	AdminUsers      []string

	BatchLimit int
	NowFn      func() time.Time
}

// Controller handles message events end to end.
type Controller struct {
	cfg     ControllerConfig
	allowed map[string]bool
	admins  map[string]bool
}

// NewController validates and wires a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Provider == nil {
		return nil, llm.ErrNoProvider
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.NowFn == nil {
		cfg.NowFn = time.Now
	}

	c := &Controller{
		cfg:     cfg,
		allowed: make(map[string]bool, len(cfg.AllowedChannels)),
		admins:  make(map[string]bool, len(cfg.AdminUsers)),
	}
	for _, ch := range cfg.AllowedChannels {
		c.allowed[ch] = true
	}
	for _, u := range cfg.AdminUsers {
		c.admins[u] = true
	}
	return c, nil
}

func (c *Controller) now() time.Time { return c.cfg.NowFn() }

func (c *Controller) batchLimit() int {
	if c.cfg.BatchLimit > 0 {
		return c.cfg.BatchLimit
	}
	return defaultBatchLimit
}

// roleFor resolves the claimed role for a chat identity.
func (c *Controller) roleFor(user string) access.Role {
	if c.admins[user] {
		return access.RoleAdmin
	}
	return access.RoleUser
}

// HandleMessage runs one conversational turn. Returned errors are
// transport-level only; every agent-level failure is converted into a
// (scrubbed) reply instead.
func (c *Controller) HandleMessage(ctx context.Context, ev chat.MessageEvent) error {
	if len(c.allowed) > 0 && !c.allowed[ev.Channel] {
		log.Debug().Str("channel", ev.Channel).Msg("channel_not_allowed")
		return nil
	}

	corrID := "corr_" + uuid.NewString()[:12]
	ctx, span := tracer.Start(ctx, "agent.turn",
		trace.WithAttributes(
			attribute.String("correlation_id", corrID),
			attribute.String("channel", ev.Channel),
		))
	defer span.End()

	role := c.roleFor(ev.User)
	threadKey := chat.Coordinate(ev.Channel, ev.ThreadTS)

	log.Info().
		Str("correlation_id", corrID).
		Str("channel", ev.Channel).
		Str("user", ev.User).
		Str("role", role.String()).
		Func(wardenotel.LogTraceFields(ctx)).
		Msg("agent_turn_started")

	if ev.Text == resetCommand {
		c.cfg.Conversations.Clear(threadKey)
		return c.reply(ctx, ev, "Conversation history cleared.")
	}

	if !c.cfg.Limiter.Allow(ev.User) {
		log.Warn().Str("correlation_id", corrID).Str("user", ev.User).Msg("rate_limited")
		c.record(ctx, audit.Event{Kind: audit.KindRateLimited, Actor: ev.User})
		return c.reply(ctx, ev, "You're sending requests too quickly. Give it a minute and try again.")
	}

	guardToken, err := sanitize.GenerateGuardToken()
	if err != nil {
		return fmt.Errorf("guard token: %w", err)
	}
	text, injections := c.cfg.Sanitizer.FlagInjection(ev.Text, guardToken)
	if len(injections) > 0 {
		log.Warn().
			Str("correlation_id", corrID).
			Str("user", ev.User).
			Int("matches", len(injections)).
			Str("first_pattern", injections[0].Pattern).
			Msg("injection_flagged")
		c.record(ctx, audit.Event{
			Kind:   audit.KindInjectionFlagged,
			Actor:  ev.User,
			Detail: injections[0].Pattern,
		})
	}

	history := c.cfg.Conversations.Messages(threadKey)
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: conversation.RoleUser, Content: text})

	final, proposed, toolOutputs, err := c.runToolLoop(ctx, corrID, msgs, ev, role, guardToken)
	if err != nil {
		scrubbed := c.cfg.Sanitizer.ScrubSecrets(err.Error())
		log.Error().
			Str("correlation_id", corrID).
			Str("error", scrubbed).
			Func(wardenotel.LogTraceFields(ctx)).
			Msg("agent_turn_failed")
		return c.reply(ctx, ev, "Something went wrong talking to the backend: "+scrubbed)
	}

	c.cfg.Conversations.AppendUser(threadKey, text)
	for _, out := range toolOutputs {
		c.cfg.Conversations.AppendToolResult(threadKey, out)
	}
	c.cfg.Conversations.AppendAssistant(threadKey, final)

	ts, err := c.cfg.Chat.PostMessage(ctx, ev.Channel, ev.ThreadTS, final)
	if err != nil {
		return fmt.Errorf("posting reply: %w", err)
	}

	if proposed != nil {
		proposed.Coordinate = chat.Coordinate(ev.Channel, ts)
		c.cfg.Pending.Put(*proposed)

		// Seed the two acknowledgement affordances on the proposal
		// reply. Reaction failures are cosmetic: the user can still
		// react manually.
		for _, name := range []string{chat.ReactionConfirm, chat.ReactionCancel} {
			if err := c.cfg.Chat.AddReaction(ctx, ev.Channel, ts, name); err != nil {
				log.Warn().Err(err).Str("reaction", name).Msg("seed_reaction_failed")
			}
		}

		log.Info().
			Str("correlation_id", corrID).
			Str("coordinate", proposed.Coordinate).
			Str("kind", proposed.Kind).
			Str("owner", proposed.Owner).
			Msg("action_proposed")
	}

	log.Info().Str("correlation_id", corrID).Msg("agent_turn_completed")
	return nil
}

// runToolLoop drives the LLM until it stops asking for tools. It returns
// the final reply text, the pending action to register once the reply is
// posted (when a mutating tool was called), and every tool-result payload
// produced during the turn, for the thread history.
func (c *Controller) runToolLoop(ctx context.Context, corrID string, msgs []llm.Message, ev chat.MessageEvent, role access.Role, guardToken string) (string, *pending.Action, []string, error) {
	req := &llm.Request{
		Model:     c.cfg.Model,
		System:    buildSystemPrompt(c.cfg.Tier, sanitize.BuildGuardSystemPrompt(guardToken)),
		MaxTokens: c.cfg.MaxTokens,
		Tools:     toolDefs(),
	}

	var proposed *pending.Action
	var toolOutputs []string
	for i := 0; i < maxToolIterations; i++ {
		req.Messages = msgs
		resp, err := c.cfg.Provider.Generate(ctx, req)
		if err != nil {
			return "", nil, nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, proposed, toolOutputs, nil
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			result := c.dispatchTool(ctx, corrID, call, ev, role, &proposed)
			results = append(results, llm.ToolResult{CallID: call.ID, Content: result})
			toolOutputs = append(toolOutputs, result)
		}

		msgs = append(msgs,
			llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls},
			llm.Message{Role: "user", ToolResults: results},
		)
	}

	return "", nil, nil, errors.New("tool loop exceeded iteration budget")
}

// dispatchTool executes one tool call. Mutating tools never touch the ATS
// here: the access gate runs first, and an allowed call only yields a
// proposal. Read tools execute and their output is redacted for the
// caller's role before the model sees it.
func (c *Controller) dispatchTool(ctx context.Context, corrID string, call llm.ToolCall, ev chat.MessageEvent, role access.Role, proposed **pending.Action) string {
	if pending.ValidKind(call.Name) {
		if err := c.cfg.Gate.Check(call.Name, c.cfg.Tier); err != nil {
			var denied *access.DeniedError
			if errors.As(err, &denied) {
				log.Warn().
					Str("correlation_id", corrID).
					Str("operation", denied.Operation).
					Str("required", denied.Required.String()).
					Str("actual", denied.Actual.String()).
					Msg("access_denied")
				c.record(ctx, audit.Event{
					Kind:      audit.KindAccessDenied,
					Actor:     ev.User,
					Operation: denied.Operation,
					Detail:    denied.Error(),
				})
			}
			// Surfaced verbatim: the model relays this to the requester.
			return errorResult(err.Error())
		}

		result, action := proposalResult(call.Name, call.Arguments, ev.User)
		*proposed = action
		return result
	}

	result, err := c.executeReadTool(ctx, call.Name, call.Arguments, role)
	if err != nil {
		scrubbed := c.cfg.Sanitizer.ScrubSecrets(err.Error())
		log.Error().
			Str("correlation_id", corrID).
			Str("tool", call.Name).
			Str("error", scrubbed).
			Msg("tool_call_failed")
		return errorResult(scrubbed)
	}
	return c.cfg.Redactor.RedactJSON(result, role)
}

// reply posts a plain text response, ignoring the message timestamp.
func (c *Controller) reply(ctx context.Context, ev chat.MessageEvent, text string) error {
	_, err := c.cfg.Chat.PostMessage(ctx, ev.Channel, ev.ThreadTS, text)
	return err
}

func (c *Controller) record(ctx context.Context, event audit.Event) {
	if c.cfg.Auditor == nil {
		return
	}
	c.cfg.Auditor.Record(ctx, event)
}
