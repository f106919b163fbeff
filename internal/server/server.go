package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/idea-workbench/internal/capability"
	"github.com/jonathan/idea-workbench/internal/config"
	"github.com/jonathan/idea-workbench/internal/db"
	"github.com/jonathan/idea-workbench/internal/llm"
	"github.com/jonathan/idea-workbench/internal/server/middleware"
	"github.com/jonathan/idea-workbench/internal/server/ratelimit"
	"github.com/jonathan/idea-workbench/internal/workflow"
)

// DBClient is the database surface the server consumes directly. The
// workflow machine talks to the store on its own.
type DBClient interface {
	CreateUser(ctx context.Context, name, email string) (uuid.UUID, error)
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
	CheckEmailExists(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	ListProjectsByUser(ctx context.Context, userID uuid.UUID) ([]db.Project, error)
}

// workflowService is the machine surface the handlers consume. Tests
// substitute a stub.
type workflowService interface {
	SubmitIdea(ctx context.Context, userID uuid.UUID, title string) (*workflow.State, error)
	Advance(ctx context.Context, userID, projectID uuid.UUID) (*workflow.State, error)
	Regenerate(ctx context.Context, userID, projectID uuid.UUID) (*workflow.State, error)
	SubmitClarificationAnswers(ctx context.Context, userID, projectID uuid.UUID, answers []string) (*workflow.State, error)
	FinishClarification(ctx context.Context, userID, projectID uuid.UUID) (*workflow.State, error)
	State(ctx context.Context, userID, projectID uuid.UUID) (*workflow.State, error)
	StageView(ctx context.Context, userID, projectID uuid.UUID, stage string) (json.RawMessage, error)
	Delete(ctx context.Context, userID, projectID uuid.UUID) error
	RunToCompletion(ctx context.Context, userID, projectID uuid.UUID, onStage func(workflow.Stage, *workflow.State)) (*workflow.State, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	db          DBClient
	database    *db.DB
	workflow    workflowService
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	userService *UserService
	authHandler *AuthHandler
}

// Config holds server configuration
type Config struct {
	Port             int
	DatabaseURL      string
	APIKey           string
	CapabilityURL    string
	ClarifyMaxRounds int
	StageTimeout     time.Duration
}

// capabilityTimeout resolves the transport backstop for the remote
// capability client. The machine resolves a zero stage timeout to its own
// default, so the backstop must resolve it the same way; otherwise the
// transport would cut calls short of the stage deadline.
func capabilityTimeout(stageTimeout time.Duration) time.Duration {
	if stageTimeout <= 0 {
		stageTimeout = workflow.DefaultStageTimeout
	}
	return stageTimeout + 10*time.Second
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	// Connect to database
	database, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Pick the capability provider: a remote backend when configured,
	// otherwise the built-in Gemini provider.
	var invoker capability.Invoker
	if cfg.CapabilityURL != "" {
		invoker = capability.NewHTTPClient(cfg.CapabilityURL, capabilityTimeout(cfg.StageTimeout))
	} else {
		client, err := llm.NewClient(context.Background(), llm.DefaultConfig(), cfg.APIKey)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		invoker = capability.NewGeminiProvider(client)
	}

	machine := workflow.NewMachine(database, invoker, workflow.Options{
		ClarifyMaxRounds: cfg.ClarifyMaxRounds,
		StageTimeout:     cfg.StageTimeout,
	})

	s := &Server{
		db:       database,
		database: database,
		workflow: machine,
	}

	// Initialize rate limiter
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	// Initialize authentication services
	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}
	s.userService = NewUserService(database, passwordConfig)

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	s.jwtService = NewJWTService(jwtConfig)
	s.authHandler = NewAuthHandler(s.userService, s.jwtService)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.routes()))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for full-run streams
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// routes builds the router. Everything under /projects requires a valid
// bearer token.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", s.authHandler.Register)
	mux.HandleFunc("POST /auth/login", s.authHandler.Login)
	mux.HandleFunc("GET /health", s.handleHealth)

	auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(h))
	}

	protected("PUT /auth/password", s.handleUpdatePassword)

	protected("POST /projects", s.handleCreateProject)
	protected("GET /projects", s.handleListProjects)
	protected("GET /projects/{id}", s.handleGetProject)
	protected("DELETE /projects/{id}", s.handleDeleteProject)

	protected("POST /projects/{id}/advance", s.handleAdvance)
	protected("POST /projects/{id}/advance/stream", s.handleAdvanceStream)
	protected("POST /projects/{id}/regenerate", s.handleRegenerate)
	protected("POST /projects/{id}/clarify", s.handleClarifyAnswers)
	protected("POST /projects/{id}/clarify/finish", s.handleClarifyFinish)
	protected("GET /projects/{id}/stages/{stage}", s.handleGetStage)

	return mux
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.database != nil {
		s.database.Close()
	}
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		if !allowed {
			s.setRateLimitHeaders(w, info)
			s.rateLimitResponse(w, info)
			return
		}

		s.setRateLimitHeaders(w, info)
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpdatePassword handles password update requests for the
// authenticated user.
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.authHandler.UpdatePasswordWithUserID(w, r, userID)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// For MVP, this uses the IP address from RemoteAddr.
// In the future, this could use X-Forwarded-For header (only from trusted proxies).
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
