package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kernelworks/kernelstudio/internal/gate"
)

// ServerConfig contains everything the API server needs.
type ServerConfig struct {
	Logger          *slog.Logger
	Kernels         KernelStore  // Required
	Turns           TurnStore    // Required
	Ingestor        Ingestor     // Required
	Retriever       Retriever    // Required
	Gate            *gate.Gate   // Required
	Composer        Composer     // Required
	Graph           GraphBuilder // Required
	Pinger          Pinger       // Optional: nil makes /ready always succeed
	MaxHistoryTurns int
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Kernels == nil || cfg.Turns == nil {
		return nil, errors.New("kernel and turn stores are required")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if cfg.Retriever == nil || cfg.Gate == nil || cfg.Composer == nil {
		return nil, errors.New("retriever, gate and composer are required")
	}
	if cfg.Graph == nil {
		return nil, errors.New("graph builder is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	kh := &kernelHandler{store: cfg.Kernels, logger: logger}
	ih := &ingestHandler{pipeline: cfg.Ingestor, logger: logger}
	ch := &chatHandler{
		kernels:         cfg.Kernels,
		turns:           cfg.Turns,
		retriever:       cfg.Retriever,
		gate:            cfg.Gate,
		composer:        cfg.Composer,
		maxHistoryTurns: cfg.MaxHistoryTurns,
		logger:          logger,
	}
	gh := &graphHandler{builder: cfg.Graph, logger: logger}

	mux := http.NewServeMux()

	// Kernel CRUD
	mux.HandleFunc("POST /api/v1/kernels", kh.create)
	mux.HandleFunc("GET /api/v1/kernels", kh.list)
	mux.HandleFunc("GET /api/v1/kernels/{id}", kh.get)
	mux.HandleFunc("DELETE /api/v1/kernels/{id}", kh.delete)

	// Ingest and chat
	mux.HandleFunc("POST /api/v1/ingest", ih.ingest)
	mux.HandleFunc("POST /api/v1/chat", ch.send)

	// Contradictions and graph projection
	mux.HandleFunc("GET /api/v1/contradictions", gh.contradictions)
	mux.HandleFunc("GET /api/v1/graph", gh.graph)

	// Middleware stack (outermost first): Recovery → Logging → Routes
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux keeps health probes out of the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pinger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
