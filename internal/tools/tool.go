// Package tools defines the assistant's tool surface: typed definitions with
// JSON schemas reflected from Go structs, argument validation, and an
// immutable registry the chat loop dispatches through.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"
)

var (
	// ErrInvalidArgs indicates the model produced arguments that fail the
	// tool's input schema.
	ErrInvalidArgs = errors.New("invalid tool arguments")

	// ErrUnknownTool indicates the model requested a tool that was never
	// declared to it.
	ErrUnknownTool = errors.New("unknown tool")
)

// Definition is a callable tool with a reflected input schema. Arguments are
// validated against the schema before the typed handler runs, so handlers
// never see malformed input.
type Definition struct {
	name        string
	description string
	schema      *jsonschema.Schema
	resolved    *jsonschema.Resolved
	run         func(ctx context.Context, args json.RawMessage) (any, error)
	declare     func(g *genkit.Genkit) ai.Tool
}

// New builds a Definition from a typed handler. The input schema is reflected
// from In's exported fields; jsonschema struct tags become field descriptions.
func New[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) (*Definition, error) {
	if name == "" {
		return nil, errors.New("tools: name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("tools: %s: handler is required", name)
	}

	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("tools: %s: reflecting input schema: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("tools: %s: resolving input schema: %w", name, err)
	}

	return &Definition{
		name:        name,
		description: description,
		schema:      schema,
		resolved:    resolved,
		run: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in In
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
			}
			return fn(ctx, in)
		},
		declare: func(g *genkit.Genkit) ai.Tool {
			return genkit.DefineTool(g, name, description,
				func(tc *ai.ToolContext, in In) (Out, error) {
					return fn(tc.Context, in)
				})
		},
	}, nil
}

// Name returns the tool name declared to the model.
func (d *Definition) Name() string { return d.name }

// Description returns the tool description declared to the model.
func (d *Definition) Description() string { return d.description }

// InputSchema returns the reflected JSON schema for the tool's arguments.
func (d *Definition) InputSchema() *jsonschema.Schema { return d.schema }

// Declare registers the tool with a genkit instance so generate calls can
// reference it by name, and returns the registered handle.
func (d *Definition) Declare(g *genkit.Genkit) ai.Tool { return d.declare(g) }

// Execute validates args against the input schema, then runs the handler.
// Schema violations return ErrInvalidArgs without invoking the handler.
func (d *Definition) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	var parsed any
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := d.resolved.Validate(parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	return d.run(ctx, args)
}
