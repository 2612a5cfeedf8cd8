// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terminal-mux/backend/internal/model"
	"github.com/terminal-mux/backend/internal/session"
)

// TerminalHandler handles HTTP requests for terminal session management.
type TerminalHandler struct {
	sessionManager *session.Manager
}

// NewTerminalHandler creates a TerminalHandler.
func NewTerminalHandler(sessionManager *session.Manager) *TerminalHandler {
	return &TerminalHandler{sessionManager: sessionManager}
}

// TerminalResponse represents a terminal session in API responses. The
// websocket fields tell clients where to attach: the multiplexer's own
// port and the handle-bearing upgrade path.
type TerminalResponse struct {
	Handle        string            `json:"handle"`
	Name          string            `json:"name"`
	Command       string            `json:"command"`
	Workdir       string            `json:"workdir,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Status        string            `json:"status"`
	ExitCode      *int              `json:"exitCode,omitempty"`
	PID           *int              `json:"pid,omitempty"`
	LogFilePath   string            `json:"logFilePath"`
	WebsocketPort int               `json:"websocketPort"`
	WebsocketPath string            `json:"websocketPath"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Create handles POST /api/terminals - creates a new terminal session.
func (h *TerminalHandler) Create(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	sess, err := h.sessionManager.Create(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrCommandRequired):
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		case errors.Is(err, model.ErrConcurrencyLimit):
			sendError(c, http.StatusConflict, "CONCURRENCY_LIMIT", err.Error())
		default:
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session: "+err.Error())
		}
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(sess))
}

// List handles GET /api/terminals - lists all terminal sessions.
func (h *TerminalHandler) List(c *gin.Context) {
	sessions, err := h.sessionManager.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list sessions: "+err.Error())
		return
	}

	responses := make([]*TerminalResponse, 0, len(sessions))
	for _, sess := range sessions {
		responses = append(responses, h.toResponse(sess))
	}
	c.JSON(http.StatusOK, gin.H{"terminals": responses})
}

// Get handles GET /api/terminals/:handle - retrieves one session.
func (h *TerminalHandler) Get(c *gin.Context) {
	handle := c.Param("handle")

	sess, err := h.sessionManager.Get(c.Request.Context(), handle)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Terminal "+handle+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, h.toResponse(sess))
}

// Delete handles DELETE /api/terminals/:handle - terminates a session.
func (h *TerminalHandler) Delete(c *gin.Context) {
	handle := c.Param("handle")

	if err := h.sessionManager.Delete(c.Request.Context(), handle); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Terminal "+handle+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete session: "+err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the terminal routes on a Gin router group.
func (h *TerminalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/terminals", h.Create)
	rg.GET("/terminals", h.List)
	rg.GET("/terminals/:handle", h.Get)
	rg.DELETE("/terminals/:handle", h.Delete)
}

// toResponse converts a model.Session to a TerminalResponse.
func (h *TerminalHandler) toResponse(s *model.Session) *TerminalResponse {
	return &TerminalResponse{
		Handle:        s.Handle,
		Name:          s.Name,
		Command:       s.Command,
		Workdir:       s.Workdir,
		Env:           s.Env,
		Status:        string(s.Status),
		ExitCode:      s.ExitCode,
		PID:           s.PID,
		LogFilePath:   s.LogFilePath,
		WebsocketPort: h.sessionManager.Socket().Port(),
		WebsocketPath: fmt.Sprintf("/terminal/%s/", s.Handle),
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     s.UpdatedAt.Format(time.RFC3339),
	}
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}
