package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/sorvx/Sorvx-main-ai/internal/tools"
	"github.com/sorvx/Sorvx-main-ai/internal/transcript"
)

// GenkitModel drives a genkit model with the registry's tool surface. Tool
// requests are returned to the caller instead of auto-executed, because the
// orchestrator owns dispatch, result folding, and the turn cap.
type GenkitModel struct {
	g        *genkit.Genkit
	model    string
	toolRefs []ai.ToolRef
	logger   *slog.Logger
}

// NewGenkitModel creates the model and declares every registry tool to
// genkit. Call once at startup; genkit tool definitions are process-global.
func NewGenkitModel(g *genkit.Genkit, modelName string, registry *tools.Registry, logger *slog.Logger) *GenkitModel {
	defs := registry.All()
	refs := make([]ai.ToolRef, 0, len(defs))
	for _, def := range defs {
		refs = append(refs, def.Declare(g))
	}

	return &GenkitModel{g: g, model: modelName, toolRefs: refs, logger: logger}
}

// Generate runs one model turn, streaming text through onChunk.
func (m *GenkitModel) Generate(ctx context.Context, req *GenerateRequest, onChunk func(text string) error) (*GenerateResult, error) {
	msgs := toGenkitMessages(req.Messages)

	resp, err := genkit.Generate(ctx, m.g,
		ai.WithModelName(m.model),
		ai.WithSystem(req.System),
		ai.WithMessages(msgs...),
		ai.WithTools(m.toolRefs...),
		ai.WithReturnToolRequests(true),
		ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			if text := chunk.Text(); text != "" {
				return onChunk(text)
			}
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("model generation: %w", err)
	}

	result := &GenerateResult{Text: resp.Text()}
	for _, tr := range resp.ToolRequests() {
		args, err := json.Marshal(tr.Input)
		if err != nil {
			m.logger.Warn("unencodable tool request input", "tool", tr.Name, "error", err)
			args = json.RawMessage("{}")
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			Name:   tr.Name,
			CallID: tr.Ref,
			Args:   args,
		})
	}
	return result, nil
}

// toGenkitMessages converts transcript history to genkit's message format.
// Assistant messages with tool invocations expand into a model message
// carrying the requests plus a tool message carrying the responses.
func toGenkitMessages(messages []transcript.Message) []*ai.Message {
	var out []*ai.Message
	for _, m := range messages {
		switch m.Role {
		case transcript.RoleSystem:
			out = append(out, ai.NewSystemTextMessage(m.Content))

		case transcript.RoleUser:
			parts := []*ai.Part{ai.NewTextPart(m.Content)}
			for _, att := range m.Attachments {
				parts = append(parts, ai.NewMediaPart(att.ContentType, att.URL))
			}
			out = append(out, ai.NewUserMessage(parts...))

		case transcript.RoleAssistant:
			parts := make([]*ai.Part, 0, 1+len(m.ToolInvocations))
			if m.Content != "" {
				parts = append(parts, ai.NewTextPart(m.Content))
			}
			var responses []*ai.Part
			for _, inv := range m.ToolInvocations {
				parts = append(parts, ai.NewToolRequestPart(&ai.ToolRequest{
					Name:  inv.ToolName,
					Ref:   inv.CallID,
					Input: inv.Args,
				}))
				if inv.State == transcript.InvocationResult {
					responses = append(responses, ai.NewToolResponsePart(&ai.ToolResponse{
						Name:   inv.ToolName,
						Ref:    inv.CallID,
						Output: inv.Result,
					}))
				}
			}
			if len(parts) > 0 {
				out = append(out, ai.NewModelMessage(parts...))
			}
			if len(responses) > 0 {
				out = append(out, ai.NewMessage(ai.RoleTool, nil, responses...))
			}
		}
	}
	return out
}
