package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// Lead pool
		r.Route("/leads", func(r chi.Router) {
			r.Post("/", h.UpsertLead)
			r.Get("/{leadID}", h.GetLead)
			r.Post("/{leadID}/bounce", h.MarkBounced)
			r.Post("/{leadID}/unsubscribe", h.MarkUnsubscribed)
			r.Post("/{leadID}/anonymize", h.AnonymizeLead)
			r.Get("/{leadID}/score", h.GetScore)
			r.Post("/{leadID}/rescore", h.Rescore)
		})

		// Allocation and the assignment ledger
		r.Post("/allocations", h.Allocate)
		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", h.ListAssignments)
			r.Get("/{assignmentID}", h.GetAssignment)
			r.Post("/{assignmentID}/touches", h.RecordTouch)
			r.Post("/{assignmentID}/replies", h.RecordReply)
			r.Post("/{assignmentID}/conversion", h.RecordConversion)
			r.Post("/{assignmentID}/release", h.ReleaseAssignment)
		})

		// Pre-send validation
		r.Post("/checks/send", h.CheckSend)

		// Sending resources
		r.Route("/resources", func(r chi.Router) {
			r.Post("/", h.RegisterResource)
			r.Get("/{kind}/{resourceID}", h.GetResource)
			r.Get("/{kind}/{resourceID}/usage", h.GetResourceUsage)
		})

		// Reporting
		r.Route("/reports", func(r chi.Router) {
			r.Get("/utilization", h.PoolUtilization)
			r.Get("/tiers", h.TierDistribution)
			r.Get("/tenants", h.TenantSummaries)
			r.Get("/channels", h.ChannelActivity)
		})
	})

	return r
}
