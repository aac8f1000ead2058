// Package httpapi holds the administrative HTTP surface. Handlers stay
// thin: parse, delegate, respond.
package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MillerSebastian/telegram-call/internal/audit"
	"github.com/MillerSebastian/telegram-call/internal/auth"
	"github.com/MillerSebastian/telegram-call/internal/calls"
	"github.com/MillerSebastian/telegram-call/internal/session"
	"github.com/MillerSebastian/telegram-call/internal/telegram"
	"github.com/MillerSebastian/telegram-call/internal/validation"
	"github.com/MillerSebastian/telegram-call/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Auth             *auth.Manager
	OperatorPassword string

	Store       *session.Store
	Coordinator *validation.Coordinator
	Calls       *calls.Service
	Gateway     *telegram.Gateway
	Audit       *audit.Service
}

// Login exchanges the operator password for a bearer token.
// POST /v1/auth/login
func (h Handlers) Login(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.OperatorPassword)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.Auth.IssueToken(time.Now(), "operator")
	if err != nil {
		logger.FromGin(c).Error("token issue failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

// Sessions dumps the current session table.
// GET /v1/sessions
func (h Handlers) Sessions(c *gin.Context) {
	snapshot := h.Store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"sessions_count": len(snapshot),
		"sessions":       snapshot,
	})
}

// ClearSessions drops every session.
// DELETE /v1/sessions
func (h Handlers) ClearSessions(c *gin.Context) {
	n := h.Store.Clear(c.Request.Context())
	h.Audit.LogAdminAction(c.Request.Context(), auth.Operator(c), "", "cleared all sessions")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "cleared": n})
}

// InjectDecision applies a decision directly, equivalent to the operator's
// validate command.
// POST /v1/decisions
func (h Handlers) InjectDecision(c *gin.Context) {
	var req struct {
		CallID string `json:"call_id" binding:"required"`
		Stage  string `json:"stage"`
		Marks  []int  `json:"marks" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "call_id and marks are required"})
		return
	}
	for _, m := range req.Marks {
		if m < 0 || m > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "marks must be 0 or 1"})
			return
		}
	}

	stage := req.Stage
	var err error
	if stage != "" {
		err = h.Coordinator.ApplyDecision(c.Request.Context(), req.CallID, stage, req.Marks)
	} else {
		stage, err = h.Coordinator.ApplyByWidth(c.Request.Context(), req.CallID, req.Marks)
	}
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, validation.ErrUnknownStage) &&
			!errors.Is(err, validation.ErrWidthMismatch) &&
			!errors.Is(err, validation.ErrAmbiguousWidth) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.Audit.LogAdminAction(c.Request.Context(), auth.Operator(c), req.CallID, "manual decision injected")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "call_id": req.CallID, "stage": stage})
}

// PlaceCall starts a verification call.
// POST /v1/calls
func (h Handlers) PlaceCall(c *gin.Context) {
	var req struct {
		To     string `json:"to" binding:"required"`
		ChatID int64  `json:"chat_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to is required"})
		return
	}

	// Decisions arrive over the operator channel; make sure someone is
	// listening before the call needs one.
	h.Gateway.Start()

	var (
		callID string
		err    error
	)
	if req.ChatID != 0 {
		callID, err = h.Calls.PlaceBound(c.Request.Context(), req.ChatID, req.To)
	} else {
		callID, err = h.Calls.Place(c.Request.Context(), req.To)
	}
	if err != nil {
		if errors.Is(err, calls.ErrInvalidNumber) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("call placement failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "call placement failed"})
		return
	}

	h.Audit.LogAdminAction(c.Request.Context(), auth.Operator(c), callID, "call placed to "+req.To)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sid": callID})
}

// PollerStart starts the operator-channel gateway.
// POST /v1/poller/start
func (h Handlers) PollerStart(c *gin.Context) {
	started := h.Gateway.Start()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "started": started})
}

// PollerStop stops the gateway.
// POST /v1/poller/stop
func (h Handlers) PollerStop(c *gin.Context) {
	stopped := h.Gateway.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stopped": stopped})
}

// PollerStatus reports gateway state.
// GET /v1/poller
func (h Handlers) PollerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"polling_active": h.Gateway.Running(),
		"last_update_id": h.Gateway.LastUpdateID(),
	})
}

// AuditEvents lists recent audit records, newest first.
// GET /v1/audit
func (h Handlers) AuditEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.Audit.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "events": events})
}
