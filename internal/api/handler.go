package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/domain"
	"github.com/shaiso/Displacement/internal/repo"
)

// DefaultMaxUploadBytes — ограничение размера загружаемого файла (1 GiB).
const DefaultMaxUploadBytes int64 = 1 << 30

// PipelineRunner — операции Runner, нужные API.
type PipelineRunner interface {
	Start(ctx context.Context, file *domain.Artifact) (<-chan error, error)
	Snapshot() domain.Run
	Catalog() *catalog.Catalog
}

// RunArchive — чтение архива runs.
type RunArchive interface {
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runner         PipelineRunner
	archive        RunArchive
	runCtx         context.Context
	maxUploadBytes int64
	allowedOrigins []string
	logger         *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Runner — pipeline (обязательно).
	Runner PipelineRunner

	// Archive — архив runs (опционально; без него /runs отвечает 503).
	Archive RunArchive

	// RunContext — контекст запускаемых runs. Run переживает HTTP-запрос,
	// поэтому контекст запроса не используется (default: Background).
	RunContext context.Context

	// MaxUploadBytes — ограничение размера файла (default: 1 GiB).
	MaxUploadBytes int64

	// AllowedOrigins — origins для CORS ("*" — любой).
	AllowedOrigins []string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	runCtx := cfg.RunContext
	if runCtx == nil {
		runCtx = context.Background()
	}

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		runner:         cfg.Runner,
		archive:        cfg.Archive,
		runCtx:         runCtx,
		maxUploadBytes: maxUpload,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}
}
