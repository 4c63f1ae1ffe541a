package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/api/handlers"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/core"
	query "github.com/lectern-ai/lectern/internal/core/query_engine"
	"github.com/lectern-ai/lectern/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	db core.DbClient,
	docs *services.DocumentService,
	queue core.ProcessingQueue,
	querySvc *query.Service,
	log *zap.Logger,
) *Server {
	docHandler := handlers.NewDocumentHandler(docs, log)
	syncHandler := handlers.NewSyncHandler(db, docs, log)
	queueHandler := handlers.NewQueueHandler(queue, log)
	chatHandler := handlers.NewChatHandler(querySvc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "chrome-extension://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/sync/course", syncHandler.SyncCourse)
		api.Post("/sync/file-ready", syncHandler.FileReady)

		api.Route("/courses/{courseID}", func(course chi.Router) {
			course.Delete("/", docHandler.DeleteCourse)
			course.Post("/files", docHandler.Upload)
			course.Get("/documents", docHandler.List)
			course.Get("/queue", queueHandler.Status)
			course.Post("/queue/retry", queueHandler.Retry)
			course.Post("/queue/clear", queueHandler.Clear)
		})

		api.Delete("/documents/{documentID}", docHandler.Delete)

		api.Post("/chat/query", chatHandler.Query)
		api.Get("/chat/sessions/{sessionID}/messages", chatHandler.Messages)
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, log: log.Named("http")}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
