package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vditaxi/clock"
	"vditaxi/config"
	"vditaxi/db"
	"vditaxi/globals"
	"vditaxi/hub"
	"vditaxi/ratelim"
	"vditaxi/rdx"
	"vditaxi/routes"
	"vditaxi/store"
)

// openStore picks MongoDB when VDI_MONGO_URI is set, memory otherwise.
func openStore(ctx context.Context, cfg config.Server) (store.Store, func(), error) {
	if cfg.MongoURI == "" {
		log.Println("💾 Using in-memory store (VDI_MONGO_URI not set)")
		return store.NewMemory(), func() {}, nil
	}
	ms, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, err
	}
	return ms, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ms.Close(ctx); err != nil {
			log.Printf("mongo disconnect: %v", err)
		}
	}, nil
}

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	globals.JwtSecret = []byte(cfg.JWTSecret)
	globals.JwtExpire = cfg.JWTExpire

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ open store: %v", err)
	}
	defer closeStore()

	clk := clock.Real()
	if cfg.Seed {
		if err := store.Seed(ctx, st, clk.Now()); err != nil {
			log.Fatalf("❌ seed: %v", err)
		}
	}

	// initialize slot event hub
	h := hub.NewHub()
	go h.Run()

	var events hub.Publisher = h
	if cfg.RedisAddr != "" {
		bus, err := rdx.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, h)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		defer bus.Close()
		go bus.Run(ctx)
		events = bus
	}

	// per-IP limits on login and occupy
	rateLimiter := ratelim.NewRateLimiter(30, 10)
	go func() {
		t := clk.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				rateLimiter.Cleanup(now)
			}
		}
	}()

	router, svc := routes.NewRouter(routes.Deps{
		Store:          st,
		Hub:            h,
		Events:         events,
		Clock:          clk,
		ConnectURL:     cfg.ConnectURL,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    rateLimiter,
	})

	if cfg.SessionMax > 0 {
		go svc.RunReaper(ctx, cfg.ReapInterval, cfg.SessionMax)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           routes.Handler(router, cfg.AllowedOrigins),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	// on shutdown: stop the hub so WebSocket clients see a close frame
	server.RegisterOnShutdown(func() {
		log.Println("🛑 Shutting down slot hub...")
		h.Stop()
	})

	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ ListenAndServe error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("🛑 Shutdown signal received; shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Graceful shutdown failed: %v", err)
		return
	}
	log.Println("✅ Server stopped cleanly")
}
