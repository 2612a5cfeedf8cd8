package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terminal-mux/backend/api/handlers"
	"github.com/terminal-mux/backend/internal/db"
	"github.com/terminal-mux/backend/internal/pty"
	"github.com/terminal-mux/backend/internal/repository"
	"github.com/terminal-mux/backend/internal/session"
	"github.com/terminal-mux/backend/internal/socket"
)

func main() {
	// Get configuration from environment
	apiPort := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "data/terminals.db")
	logDir := getEnv("LOG_DIR", "data/logs")
	maxSessions := getEnvInt("MAX_SESSIONS", 10)

	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	// Initialize database
	database, err := db.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Initialize repository
	terminalRepo := repository.NewTerminalRepository(database)

	// Initialize PTY manager
	ptyManager := pty.NewManager()
	defer ptyManager.Close()

	// Start the terminal websocket multiplexer on its own ephemeral port
	sock := socket.New()
	if err := sock.EnsureServerRunning(); err != nil {
		log.Fatalf("Failed to start terminal websocket server: %v", err)
	}
	defer sock.StopServer()
	log.Printf("Terminal websocket server listening on port %d", sock.Port())

	// Initialize session manager
	sessionManager := session.NewManager(ptyManager, terminalRepo, sock, session.Config{
		LogDir:      logDir,
		MaxSessions: maxSessions,
	})
	defer sessionManager.Close()

	// Initialize handlers
	terminalHandler := handlers.NewTerminalHandler(sessionManager)

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":        "ok",
			"websocketPort": sock.Port(),
		})
	})

	// API routes
	api := r.Group("/api")
	{
		terminalHandler.RegisterRoutes(api)
	}

	// Start server
	srv := &http.Server{Addr: ":" + apiPort, Handler: r}
	go func() {
		log.Printf("Starting API server on port %s", apiPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown: drain the API server, then let the deferred
	// closes tear down sessions, the websocket server, and the database.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("API server shutdown: %v", err)
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
