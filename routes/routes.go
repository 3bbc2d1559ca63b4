package routes

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"vditaxi/admin"
	"vditaxi/auth"
	"vditaxi/bookings"
	"vditaxi/hub"
	"vditaxi/middleware"
	"vditaxi/profile"
	"vditaxi/ratelim"
	"vditaxi/slots"
	"vditaxi/store"
	"vditaxi/templates"
)

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func AddHealthRoutes(router *httprouter.Router) {
	router.GET("/health", Index)
	router.GET("/api/health", Index)
}

func AddAuthRoutes(router *httprouter.Router, h *auth.Handlers, rl *ratelim.RateLimiter) {
	router.POST("/api/auth/login", rl.Limit(h.Login))
	router.POST("/api/auth/logout", middleware.Authenticate(h.Logout))
	router.GET("/api/auth/me", middleware.Authenticate(h.Me))
}

func AddSlotRoutes(router *httprouter.Router, s *slots.Service, rl *ratelim.RateLimiter) {
	router.GET("/api/slots", middleware.Authenticate(s.ListSlots))
	router.POST("/api/slots/:id/occupy", rl.Limit(middleware.Authenticate(s.OccupySlot)))
	router.POST("/api/slots/:id/release", middleware.Authenticate(s.ReleaseSlot))
	router.POST("/api/slots/:id/force-release", middleware.RequireAdmin(s.Store, s.ForceReleaseSlot))
	router.GET("/api/slots/:id/credentials", middleware.Authenticate(s.GetCredentials))

	router.POST("/api/slots/:id/queue", middleware.Authenticate(s.JoinQueueHandler))
	router.DELETE("/api/slots/:id/queue", middleware.Authenticate(s.LeaveQueueHandler))
	router.GET("/api/slots/:id/queue", middleware.Authenticate(s.QueueInfo))
}

func AddBookingRoutes(router *httprouter.Router, h *bookings.Handlers) {
	router.GET("/api/bookings", middleware.Authenticate(h.ListBookings))
	router.POST("/api/bookings", middleware.Authenticate(h.CreateBooking))
	router.DELETE("/api/bookings/:id", middleware.Authenticate(h.CancelBooking))
}

func AddTemplateRoutes(router *httprouter.Router, h *templates.Handlers) {
	router.GET("/api/templates", middleware.Authenticate(h.ListTemplates))
	router.POST("/api/templates", middleware.Authenticate(h.CreateTemplate))
	router.PUT("/api/templates/:id", middleware.Authenticate(h.UpdateTemplate))
	router.DELETE("/api/templates/:id", middleware.Authenticate(h.DeleteTemplate))
	router.POST("/api/templates/:id/launch", middleware.Authenticate(h.LaunchTemplate))
}

func AddProfileRoutes(router *httprouter.Router, h *profile.Handlers) {
	router.GET("/api/profile", middleware.Authenticate(h.GetProfile))
	router.PUT("/api/profile", middleware.Authenticate(h.UpdateProfile))
	router.GET("/api/profile/sessions", middleware.Authenticate(h.SessionHistory))
	router.GET("/api/sessions/:id/summary", middleware.Authenticate(h.SessionSummary))
}

func AddAdminRoutes(router *httprouter.Router, st store.Store, h *admin.Handlers) {
	router.GET("/api/admin/slots", middleware.RequireAdmin(st, h.ListSlots))
	router.POST("/api/admin/slots", middleware.RequireAdmin(st, h.CreateSlot))
	router.PUT("/api/admin/slots/:id", middleware.RequireAdmin(st, h.UpdateSlot))
	router.GET("/api/admin/users", middleware.RequireAdmin(st, h.ListUsers))
	router.GET("/api/admin/stats", middleware.RequireAdmin(st, h.Stats))
}

func AddWebSocketRoutes(router *httprouter.Router, h *hub.Hub, upgrader websocket.Upgrader) {
	router.GET("/api/ws/slots", hub.WebSocketHandler(h, upgrader))
}
