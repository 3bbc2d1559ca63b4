package routes

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"vditaxi/admin"
	"vditaxi/auth"
	"vditaxi/bookings"
	"vditaxi/clock"
	"vditaxi/hub"
	"vditaxi/middleware"
	"vditaxi/profile"
	"vditaxi/ratelim"
	"vditaxi/slots"
	"vditaxi/store"
	"vditaxi/templates"
)

// Deps is everything the portal's handlers need.
type Deps struct {
	Store store.Store
	Hub   *hub.Hub
	// Events defaults to Hub. Set it to the redis bus to fan out across
	// instances.
	Events         hub.Publisher
	Clock          clock.Clock
	ConnectURL     string
	AllowedOrigins []string
	RateLimiter    *ratelim.RateLimiter
}

// NewRouter builds the router with every portal route. The returned
// slots.Service also drives the session reaper.
func NewRouter(d Deps) (*httprouter.Router, *slots.Service) {
	if d.Events == nil {
		d.Events = d.Hub
	}
	if d.RateLimiter == nil {
		d.RateLimiter = ratelim.NewRateLimiter(30, 10)
	}
	svc := &slots.Service{Store: d.Store, Events: d.Events, Clock: d.Clock, ConnectURL: d.ConnectURL}

	router := httprouter.New()
	AddHealthRoutes(router)
	AddAuthRoutes(router, &auth.Handlers{Store: d.Store, Clock: d.Clock}, d.RateLimiter)
	AddSlotRoutes(router, svc, d.RateLimiter)
	AddBookingRoutes(router, &bookings.Handlers{Store: d.Store, Clock: d.Clock})
	AddTemplateRoutes(router, &templates.Handlers{Store: d.Store, Slots: svc})
	AddProfileRoutes(router, &profile.Handlers{Store: d.Store, Clock: d.Clock})
	AddAdminRoutes(router, d.Store, &admin.Handlers{Store: d.Store, Slots: svc, Clock: d.Clock})
	AddWebSocketRoutes(router, d.Hub, hub.NewUpgrader(d.AllowedOrigins))
	return router, svc
}

// Handler applies the middleware chain: request id → logging →
// security headers → CORS → router.
func Handler(router http.Handler, allowedOrigins []string) http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", "X-Client-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}).Handler(router)

	return middleware.RequestID(middleware.Logging(middleware.SecurityHeaders(corsHandler)))
}
