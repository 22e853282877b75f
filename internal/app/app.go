// Package app wires the application together: database, genkit, tools,
// orchestrator, and supporting stores.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sorvx/Sorvx-main-ai/internal/auth"
	"github.com/sorvx/Sorvx-main-ai/internal/chat"
	"github.com/sorvx/Sorvx-main-ai/internal/config"
	"github.com/sorvx/Sorvx-main-ai/internal/database"
	"github.com/sorvx/Sorvx-main-ai/internal/genai"
	"github.com/sorvx/Sorvx-main-ai/internal/tools"
	"github.com/sorvx/Sorvx-main-ai/internal/transcript"
	"github.com/sorvx/Sorvx-main-ai/internal/upload"
)

// Structured tool generation runs against a fast model; keep it from
// stampeding the provider when the model fans out tool calls.
const (
	toolGenRPS   = 5
	toolGenBurst = 10
)

// App holds the constructed application components.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Genkit       *genkit.Genkit
	Pool         *pgxpool.Pool
	Store        *transcript.Store
	Gate         *auth.Gate
	Uploads      *upload.Store
	Orchestrator *chat.Orchestrator
}

// Setup constructs the full application. The GEMINI_API_KEY environment
// variable must be set; the googlegenai plugin reads it at Init.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	genClient, err := genai.NewClient(genai.Config{
		G:         g,
		ModelName: cfg.ToolModel,
		RPS:       toolGenRPS,
		Burst:     toolGenBurst,
		Logger:    logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating generation client: %w", err)
	}

	codeTools, err := tools.NewCodeTools(genClient)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building tools: %w", err)
	}
	registry, err := tools.NewRegistry(codeTools...)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	model := chat.NewGenkitModel(g, cfg.ChatModel, registry, logger)

	store := transcript.NewStore(pool, logger)

	orch, err := chat.New(chat.Config{
		Model:    model,
		Registry: registry,
		Store:    store,
		MaxTurns: cfg.MaxTurns,
		Logger:   logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	uploads, err := upload.NewStore(cfg.UploadDir, cfg.MaxUploadBytes, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating upload store: %w", err)
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Genkit:       g,
		Pool:         pool,
		Store:        store,
		Gate:         auth.NewGate([]byte(cfg.AuthSecret), logger),
		Uploads:      uploads,
		Orchestrator: orch,
	}, nil
}

// Close releases application resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
