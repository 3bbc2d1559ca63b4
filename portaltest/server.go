// Package portaltest runs a seeded portal in-process for client tests.
package portaltest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"vditaxi/clock"
	"vditaxi/hub"
	"vditaxi/ratelim"
	"vditaxi/routes"
	"vditaxi/slots"
	"vditaxi/store"
)

type Server struct {
	*httptest.Server
	Store *store.Memory
	Hub   *hub.Hub
	Slots *slots.Service
	Clock *clock.FakeClock
}

// APIURL is the base URL a portal.Client expects.
func (s *Server) APIURL() string { return s.URL + "/api" }

// New starts a portal over a seeded memory store. Everything is torn
// down with the test.
func New(t testing.TB) *Server {
	t.Helper()
	// Tokens are checked against wall time, so the fake starts at now.
	clk := clock.Fake(time.Now())
	st := store.NewMemory()
	if err := store.Seed(context.Background(), st, clk.Now()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := hub.NewHub()
	go h.Run()

	router, svc := routes.NewRouter(routes.Deps{
		Store:          st,
		Hub:            h,
		Clock:          clk,
		ConnectURL:     "/guacamole/#/client/%s",
		AllowedOrigins: []string{"*"},
		RateLimiter:    ratelim.NewRateLimiter(6000, 1000),
	})
	srv := httptest.NewServer(routes.Handler(router, []string{"*"}))
	t.Cleanup(func() {
		h.Stop()
		srv.CloseClientConnections()
		srv.Close()
	})
	return &Server{Server: srv, Store: st, Hub: h, Slots: svc, Clock: clk}
}
