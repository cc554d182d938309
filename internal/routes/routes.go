package routes

import (
	"net/http"

	"github.com/proptly/mediaflow/internal/app"
	"github.com/proptly/mediaflow/internal/handler"
	"github.com/proptly/mediaflow/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	files := handler.NewFileHandler(app.FileService, app.ChunkArena)
	health := handler.NewHealthHandler(app.DB)

	// Upload routes share one admission gate so concurrent large bodies
	// stay bounded.
	uploads := middleware.NewUploadLimiter(app.Cfg.UploadConcurrency, app.Cfg.UploadMaxBytes)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /api/health", health.Health)

	// ============================================================================
	// PROTECTED ROUTES (/api/*)
	// ============================================================================

	// Upload pipeline
	mux.HandleFunc("POST /api/jobs/{jobID}/upload-url", middleware.RequireAuth(files.NegotiateUpload))
	mux.HandleFunc("POST /api/jobs/{jobID}/upload-file", middleware.RequireAuth(uploads.Limit(files.UploadFile)))
	mux.HandleFunc("POST /api/jobs/{jobID}/upload-file-chunk", middleware.RequireAuth(uploads.Limit(files.UploadChunk)))
	mux.HandleFunc("POST /api/jobs/{jobID}/process-file", middleware.RequireAuth(files.ProcessFile))

	// Retrieval
	mux.HandleFunc("GET /api/jobs/{jobID}/files", middleware.RequireAuth(files.ListJobFiles))
	mux.HandleFunc("GET /api/files/{fileID}/download", middleware.RequireAdmin(files.Download))

	// Global middleware - executed in order (top to bottom)
	return middleware.Chain(
		mux,
		middleware.Config(app.Cfg),
		middleware.RequestLogging,
		middleware.AuthMiddleware(app.Cfg.JWTSecret, app.UserRepository),
	)
}
