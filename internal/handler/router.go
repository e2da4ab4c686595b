package handler

import (
	"net/http"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/gate"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/order"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RouterProperty lists what the HTTP surface is built from. Redis is
// optional; without it requests are not rate limited.
type RouterProperty struct {
	Events         *service.EventService
	Orders         *order.Service
	Gate           *gate.Validator
	Redis          *redis.Client
	Logger         *zap.Logger
	AdminToken     string
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
	// StaticDir, if set, is served under StaticPrefix.
	StaticDir    string
	StaticPrefix string
}

// NewRouter builds the chi router with the global middleware stack.
func NewRouter(p RouterProperty) chi.Router {
	validate := validator.New(validator.WithRequiredStructEnabled())
	events := NewEventHandler(p.Events, validate, p.Logger)
	orders := NewOrderHandler(p.Orders, validate, p.Logger)
	gates := NewGateHandler(p.Gate, p.Logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(p.Logger))        // structured access log
	r.Use(CORS(p.AllowedOrigins))

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", events.ListEvents)
		r.Get("/{id}", events.GetEvent)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", orders.PlaceOrder)
		r.Get("/{id}", orders.GetOrder)
		r.Post("/{id}/confirm", orders.Confirm)
		r.Post("/{id}/reference", orders.SubmitReference)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Get("/stripe/success/{id}", orders.StripeSuccess)
		r.Get("/stripe/cancel/{id}", orders.StripeCancel)
		r.Post("/mpesa/callback", orders.MpesaCallback)
	})

	r.Get("/tickets/{code}", gates.GetTicket)
	r.With(RateLimit(p.Redis, "gate", p.RateLimit, p.RateWindow, p.Logger)).
		Post("/validate", gates.Validate)

	r.Route("/admin", func(r chi.Router) {
		r.Use(RateLimit(p.Redis, "admin", p.RateLimit, p.RateWindow, p.Logger))
		// Manual confirmations carry their own token, checked by the
		// paybill provider.
		r.Post("/orders/{id}/confirm", orders.AdminConfirm)
		r.With(RequireToken(p.AdminToken)).Post("/events", events.CreateEvent)
	})

	if p.StaticDir != "" {
		prefix := p.StaticPrefix
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(p.StaticDir))))
	}

	return r
}
