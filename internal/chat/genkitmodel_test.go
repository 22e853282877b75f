package chat

import (
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/sorvx/Sorvx-main-ai/internal/transcript"
)

func TestToGenkitMessages(t *testing.T) {
	t.Run("maps roles and attachments", func(t *testing.T) {
		history := []transcript.Message{
			{Role: transcript.RoleSystem, Content: "be helpful"},
			{Role: transcript.RoleUser, Content: "look at this", Attachments: []transcript.Attachment{
				{Name: "shot.png", ContentType: "image/png", URL: "/api/v1/files/shot.png"},
			}},
			{Role: transcript.RoleAssistant, Content: "looking"},
		}

		out := toGenkitMessages(history)
		if len(out) != 3 {
			t.Fatalf("got %d messages, want 3", len(out))
		}
		if out[0].Role != ai.RoleSystem {
			t.Errorf("first role = %s, want system", out[0].Role)
		}
		if out[1].Role != ai.RoleUser {
			t.Errorf("second role = %s, want user", out[1].Role)
		}
		if len(out[1].Content) != 2 {
			t.Fatalf("user message has %d parts, want text + media", len(out[1].Content))
		}
		if out[1].Content[0].Text != "look at this" {
			t.Errorf("user text = %q", out[1].Content[0].Text)
		}
		if out[2].Role != ai.RoleModel {
			t.Errorf("third role = %s, want model", out[2].Role)
		}
	})

	t.Run("expands completed invocations into request and response messages", func(t *testing.T) {
		history := []transcript.Message{
			{Role: transcript.RoleUser, Content: "review this"},
			{Role: transcript.RoleAssistant, Content: "on it", ToolInvocations: []transcript.ToolInvocation{
				{
					ToolName: "reviewCode",
					CallID:   "call-1",
					State:    transcript.InvocationResult,
					Args:     map[string]any{"code": "x"},
					Result:   map[string]any{"score": 7},
				},
			}},
		}

		out := toGenkitMessages(history)
		if len(out) != 3 {
			t.Fatalf("got %d messages, want user + model + tool", len(out))
		}

		model := out[1]
		if model.Role != ai.RoleModel {
			t.Fatalf("second role = %s, want model", model.Role)
		}
		if len(model.Content) != 2 {
			t.Fatalf("model message has %d parts, want text + tool request", len(model.Content))
		}
		req := model.Content[1].ToolRequest
		if req == nil || req.Name != "reviewCode" || req.Ref != "call-1" {
			t.Errorf("tool request = %+v", req)
		}

		toolMsg := out[2]
		if toolMsg.Role != ai.RoleTool {
			t.Fatalf("third role = %s, want tool", toolMsg.Role)
		}
		resp := toolMsg.Content[0].ToolResponse
		if resp == nil || resp.Name != "reviewCode" || resp.Ref != "call-1" {
			t.Errorf("tool response = %+v", resp)
		}
	})

	t.Run("pending invocations emit no tool message", func(t *testing.T) {
		history := []transcript.Message{
			{Role: transcript.RoleAssistant, ToolInvocations: []transcript.ToolInvocation{
				{ToolName: "fixBug", CallID: "call-2", State: transcript.InvocationPending},
			}},
		}

		out := toGenkitMessages(history)
		if len(out) != 1 {
			t.Fatalf("got %d messages, want model message only", len(out))
		}
		if out[0].Role != ai.RoleModel {
			t.Errorf("role = %s, want model", out[0].Role)
		}
	})

	t.Run("unknown roles are dropped", func(t *testing.T) {
		history := []transcript.Message{
			{Role: transcript.RoleTool, Content: "raw tool row"},
		}
		if out := toGenkitMessages(history); len(out) != 0 {
			t.Fatalf("got %d messages, want 0", len(out))
		}
	})
}
