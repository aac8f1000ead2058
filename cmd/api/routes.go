package main

import (
	"net/http"

	"github.com/MillerSebastian/telegram-call/internal/audit"
	"github.com/MillerSebastian/telegram-call/internal/auth"
	"github.com/MillerSebastian/telegram-call/internal/calls"
	"github.com/MillerSebastian/telegram-call/internal/config"
	"github.com/MillerSebastian/telegram-call/internal/flow"
	"github.com/MillerSebastian/telegram-call/internal/httpapi"
	"github.com/MillerSebastian/telegram-call/internal/session"
	"github.com/MillerSebastian/telegram-call/internal/telegram"
	"github.com/MillerSebastian/telegram-call/internal/telephony"
	"github.com/MillerSebastian/telegram-call/internal/validation"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg         config.Config
	engine      *flow.Engine
	statusSvc   *telephony.StatusService
	store       *session.Store
	coordinator *validation.Coordinator
	callsSvc    *calls.Service
	gateway     *telegram.Gateway
	auditSvc    *audit.Service
	authManager *auth.Manager
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public). Twilio fetches TwiML over GET or POST
	// depending on the verb that referenced the route.
	// NOTE: protect with Twilio signature validation before exposing beyond
	// a private deployment.
	{
		voice := telephony.VoiceHandlers{Engine: d.engine, Status: d.statusSvc}

		r.GET("/voice/step/:field", voice.PromptStep)
		r.POST("/voice/step/:field", voice.PromptStep)
		r.POST("/voice/collect/:field", voice.CollectStep)
		r.GET("/voice/waiting", voice.Waiting)
		r.POST("/voice/waiting", voice.Waiting)
		r.GET("/voice/decision", voice.Decision)
		r.POST("/voice/decision", voice.Decision)
		r.POST("/voice/status", voice.StatusCallback)
	}

	// Admin surface.
	h := httpapi.Handlers{
		Auth:             d.authManager,
		OperatorPassword: d.cfg.Auth.OperatorPassword,
		Store:            d.store,
		Coordinator:      d.coordinator,
		Calls:            d.callsSvc,
		Gateway:          d.gateway,
		Audit:            d.auditSvc,
	}

	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.Login)

	protected := v1.Group("")
	protected.Use(auth.RequireToken(d.authManager))
	{
		protected.POST("/calls", h.PlaceCall)
		protected.GET("/sessions", h.Sessions)
		protected.DELETE("/sessions", h.ClearSessions)
		protected.POST("/decisions", h.InjectDecision)
		protected.POST("/poller/start", h.PollerStart)
		protected.POST("/poller/stop", h.PollerStop)
		protected.GET("/poller", h.PollerStatus)
		protected.GET("/audit", h.AuditEvents)
	}
}
