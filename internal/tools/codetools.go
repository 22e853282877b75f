package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/sorvx/Sorvx-main-ai/internal/genai"
)

// Input types for the code assistant tools. Field descriptions are surfaced
// to the model through the reflected schema.

type ExplainCodeInput struct {
	Code     string `json:"code" jsonschema:"The code to explain"`
	Language string `json:"language" jsonschema:"Programming language of the code"`
}

type ExplainCodeOutput struct {
	Explanation          string   `json:"explanation" jsonschema:"Clear explanation of what the code does"`
	KeyPoints            []string `json:"keyPoints" jsonschema:"Key concepts and patterns used in the code"`
	PossibleImprovements []string `json:"possibleImprovements" jsonschema:"Potential ways to improve the code"`
}

type SuggestCodeInput struct {
	Task     string `json:"task" jsonschema:"What the code should accomplish"`
	Language string `json:"language" jsonschema:"Programming language to generate"`
	Context  string `json:"context,omitempty" jsonschema:"Optional surrounding code or constraints"`
}

type SuggestCodeOutput struct {
	Code         string   `json:"code" jsonschema:"The suggested code solution"`
	Explanation  string   `json:"explanation" jsonschema:"Explanation of how the code works"`
	Requirements []string `json:"requirements" jsonschema:"Required dependencies or setup steps"`
}

type FixBugInput struct {
	Code     string `json:"code" jsonschema:"The code containing the bug"`
	Error    string `json:"error" jsonschema:"The error message or observed behavior"`
	Language string `json:"language" jsonschema:"Programming language of the code"`
}

type FixBugOutput struct {
	FixedCode      string   `json:"fixedCode" jsonschema:"The corrected code"`
	Explanation    string   `json:"explanation" jsonschema:"Explanation of what caused the bug"`
	PreventionTips []string `json:"preventionTips" jsonschema:"Tips to prevent similar bugs in the future"`
}

type ReviewCodeInput struct {
	Code     string `json:"code" jsonschema:"The code to review"`
	Language string `json:"language" jsonschema:"Programming language of the code"`
}

type ReviewCodeOutput struct {
	Score           float64  `json:"score" jsonschema:"Code quality score from 1 to 10"`
	Strengths       []string `json:"strengths" jsonschema:"Good practices found in the code"`
	Improvements    []string `json:"improvements" jsonschema:"Suggested improvements and best practices"`
	SecurityIssues  []string `json:"securityIssues" jsonschema:"Potential security concerns"`
	PerformanceTips []string `json:"performanceTips" jsonschema:"Performance optimization suggestions"`
}

type GenerateTestsInput struct {
	Code     string `json:"code" jsonschema:"The code to generate tests for"`
	Language string `json:"language" jsonschema:"Programming language of the code"`
}

type TestCase struct {
	Description    string `json:"description" jsonschema:"What the test case verifies"`
	Input          string `json:"input" jsonschema:"Test input values"`
	ExpectedOutput string `json:"expectedOutput" jsonschema:"Expected output or behavior"`
	TestCode       string `json:"testCode" jsonschema:"The actual test code"`
}

type GenerateTestsOutput struct {
	TestCases []TestCase `json:"testCases"`
	Coverage  []string   `json:"coverage" jsonschema:"Areas of code covered by the tests"`
}

// validate rejects review output whose score escaped the schema's declared
// bounds; a bad score becomes a tool error rather than a silently wrong
// transcript entry.
func (o ReviewCodeOutput) validate() error {
	if o.Score < 1 || o.Score > 10 {
		return fmt.Errorf("review score %.1f out of range [1,10]", o.Score)
	}
	return nil
}

// NewCodeTools builds the five code assistant tools, each backed by a
// structured generation call against gen's model.
func NewCodeTools(gen *genai.Client) ([]*Definition, error) {
	explain, err := New("explainCode", "Explain what a piece of code does",
		func(ctx context.Context, in ExplainCodeInput) (ExplainCodeOutput, error) {
			prompt := fmt.Sprintf("Explain this %s code:\n\n%s", in.Language, in.Code)
			return genai.Object[ExplainCodeOutput](ctx, gen, prompt)
		})
	if err != nil {
		return nil, err
	}

	suggest, err := New("suggestCode", "Generate code for a described task",
		func(ctx context.Context, in SuggestCodeInput) (SuggestCodeOutput, error) {
			var b strings.Builder
			fmt.Fprintf(&b, "Generate %s code for: %s\n", in.Language, in.Task)
			if in.Context != "" {
				fmt.Fprintf(&b, "Context: %s", in.Context)
			}
			return genai.Object[SuggestCodeOutput](ctx, gen, b.String())
		})
	if err != nil {
		return nil, err
	}

	fix, err := New("fixBug", "Fix a bug given the code and its error",
		func(ctx context.Context, in FixBugInput) (FixBugOutput, error) {
			prompt := fmt.Sprintf(
				"Fix this %s code that has the following error:\n\nCode:\n%s\n\nError:\n%s",
				in.Language, in.Code, in.Error)
			return genai.Object[FixBugOutput](ctx, gen, prompt)
		})
	if err != nil {
		return nil, err
	}

	review, err := New("reviewCode", "Review code for quality, security, and performance",
		func(ctx context.Context, in ReviewCodeInput) (ReviewCodeOutput, error) {
			prompt := fmt.Sprintf(
				"Review this %s code for best practices and potential issues:\n\n%s",
				in.Language, in.Code)
			out, err := genai.Object[ReviewCodeOutput](ctx, gen, prompt)
			if err != nil {
				return ReviewCodeOutput{}, err
			}
			if err := out.validate(); err != nil {
				return ReviewCodeOutput{}, err
			}
			return out, nil
		})
	if err != nil {
		return nil, err
	}

	tests, err := New("generateTests", "Generate test cases for a piece of code",
		func(ctx context.Context, in GenerateTestsInput) (GenerateTestsOutput, error) {
			prompt := fmt.Sprintf("Generate test cases for this %s code:\n\n%s", in.Language, in.Code)
			return genai.Object[GenerateTestsOutput](ctx, gen, prompt)
		})
	if err != nil {
		return nil, err
	}

	return []*Definition{explain, suggest, fix, review, tests}, nil
}
