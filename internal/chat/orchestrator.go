// Package chat runs the streaming conversation loop: it drives the model
// with the declared tool surface, executes requested tools mid-stream, folds
// their results back into the context, and persists the finished transcript.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sorvx/Sorvx-main-ai/internal/tools"
	"github.com/sorvx/Sorvx-main-ai/internal/transcript"
)

// ToolCall is a single tool request emitted by the model, matched to its
// result by CallID.
type ToolCall struct {
	Name   string
	CallID string
	Args   json.RawMessage
}

// GenerateRequest is one model invocation: the running history plus the
// declared tool surface.
type GenerateRequest struct {
	System   string
	Messages []transcript.Message
	Tools    []*tools.Definition
}

// GenerateResult is the model's reply for one turn. A non-empty ToolCalls
// means the turn is not final; the orchestrator must execute the calls and
// generate again.
type GenerateResult struct {
	Text      string
	ToolCalls []ToolCall
}

// Model produces one generation turn, streaming text through onChunk as it
// arrives. Implementations must not call onChunk after returning.
type Model interface {
	Generate(ctx context.Context, req *GenerateRequest, onChunk func(text string) error) (*GenerateResult, error)
}

// Emitter receives streaming output for the client. Emit errors mean the
// client is gone; the orchestrator keeps going so the transcript still gets
// persisted.
type Emitter interface {
	Chunk(text string) error
	Tool(inv transcript.ToolInvocation) error
	Done(conversationID string, persisted bool) error
}

// Saver persists finished conversations.
type Saver interface {
	Save(ctx context.Context, conv *transcript.Conversation) error
}

const (
	defaultMaxTurns = 8
	persistTimeout  = 10 * time.Second
)

// Config holds Orchestrator dependencies.
type Config struct {
	Model    Model
	Registry *tools.Registry
	Store    Saver
	MaxTurns int
	Logger   *slog.Logger
}

func (c Config) validate() error {
	if c.Model == nil {
		return errors.New("chat: model is required")
	}
	if c.Registry == nil {
		return errors.New("chat: tool registry is required")
	}
	if c.Store == nil {
		return errors.New("chat: store is required")
	}
	if c.Logger == nil {
		return errors.New("chat: logger is required")
	}
	return nil
}

// Orchestrator runs chat requests to completion.
type Orchestrator struct {
	model    Model
	registry *tools.Registry
	store    Saver
	maxTurns int
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Orchestrator{
		model:    cfg.Model,
		registry: cfg.Registry,
		store:    cfg.Store,
		maxTurns: maxTurns,
		logger:   cfg.Logger,
	}, nil
}

// Request is one incoming chat request. The client sends the full visible
// history; ConversationID may be empty for a new conversation.
type Request struct {
	ConversationID string
	OwnerID        string
	Messages       []transcript.Message
}

// Run executes the generate/tool loop for one request and streams output
// through em. The returned error covers model failures; persistence failures
// are reported through Done, not the error.
//
// If the client disconnects mid-stream, generation stops with the context
// but the transcript accumulated so far is still saved.
func (o *Orchestrator) Run(ctx context.Context, req *Request, em Emitter) error {
	history := normalize(req.Messages)

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}
	logger := o.logger.With("conversation_id", convID)

	for turn := 0; turn < o.maxTurns; turn++ {
		genReq := &GenerateRequest{
			System:   systemPrompt,
			Messages: history,
			Tools:    o.registry.All(),
		}

		res, genErr := o.model.Generate(ctx, genReq, func(text string) error {
			return em.Chunk(text)
		})
		if genErr != nil {
			// A canceled context still gets a persistence attempt.
			if errors.Is(genErr, context.Canceled) {
				o.persistAndFinish(ctx, em, convID, req.OwnerID, history)
				return genErr
			}
			return fmt.Errorf("generating turn %d: %w", turn, genErr)
		}

		if len(res.ToolCalls) == 0 {
			history = append(history, transcript.Message{
				ID:      uuid.NewString(),
				Role:    transcript.RoleAssistant,
				Content: res.Text,
			})
			break
		}

		invs := o.dispatch(ctx, res.ToolCalls)
		for _, inv := range invs {
			if err := em.Tool(inv); err != nil {
				logger.Debug("client gone during tool emission", "error", err)
			}
		}

		history = append(history, transcript.Message{
			ID:              uuid.NewString(),
			Role:            transcript.RoleAssistant,
			Content:         res.Text,
			ToolInvocations: invs,
		})
	}

	o.persistAndFinish(ctx, em, convID, req.OwnerID, history)
	return nil
}

// dispatch executes a batch of tool calls concurrently and returns one
// result per call, in call order. Tool failures become error-bearing results
// rather than aborting the batch.
//
// Executions run on a detached context: a client disconnect must not turn an
// in-flight tool into a synthetic error in the persisted transcript.
func (o *Orchestrator) dispatch(ctx context.Context, calls []ToolCall) []transcript.ToolInvocation {
	ctx = context.WithoutCancel(ctx)
	invs := make([]transcript.ToolInvocation, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			invs[i] = o.invoke(ctx, call)
		}()
	}
	wg.Wait()

	return invs
}

func (o *Orchestrator) invoke(ctx context.Context, call ToolCall) transcript.ToolInvocation {
	inv := transcript.ToolInvocation{
		ToolName: call.Name,
		CallID:   call.CallID,
		State:    transcript.InvocationResult,
	}
	if len(call.Args) > 0 {
		// Best effort; unparseable args surface through Execute below.
		_ = json.Unmarshal(call.Args, &inv.Args)
	}

	def, err := o.registry.Get(call.Name)
	if err != nil {
		o.logger.Warn("model requested unknown tool", "tool", call.Name)
		inv.Result = errorResult(err)
		return inv
	}

	out, err := def.Execute(ctx, call.Args)
	if err != nil {
		o.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		inv.Result = errorResult(err)
		return inv
	}

	inv.Result = out
	return inv
}

// errorResult normalizes a tool failure into a result the model can read and
// recover from in the next turn.
func errorResult(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

// persistAndFinish saves the transcript best-effort and reports completion.
// The save uses a detached context so a client disconnect does not lose the
// conversation.
func (o *Orchestrator) persistAndFinish(ctx context.Context, em Emitter, convID, ownerID string, history []transcript.Message) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	persisted := true
	err := o.store.Save(saveCtx, &transcript.Conversation{
		ID:       convID,
		OwnerID:  ownerID,
		Messages: history,
	})
	if err != nil {
		persisted = false
		o.logger.Warn("transcript persistence failed",
			"conversation_id", convID, "error", err)
	}

	if err := em.Done(convID, persisted); err != nil {
		o.logger.Debug("client gone before done event", "conversation_id", convID)
	}
}

// normalize filters the client-sent history down to usable messages: known
// roles, non-empty content. Tool-role messages are rebuilt server-side each
// turn and are dropped if a client sends them. An empty result still goes to
// the model; it may open the conversation itself.
func normalize(messages []transcript.Message) []transcript.Message {
	out := make([]transcript.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case transcript.RoleUser, transcript.RoleAssistant, transcript.RoleSystem:
		default:
			continue
		}
		if strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0 && len(m.ToolInvocations) == 0 {
			continue
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		out = append(out, m)
	}
	return out
}
