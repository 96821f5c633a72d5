package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shoplane.org/internal/auth"
	"shoplane.org/internal/httpapi"
	"shoplane.org/internal/obs"
	"shoplane.org/internal/store/pg"
	"shoplane.org/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()

	// The signing key is process configuration: loaded once here, injected
	// into the codec, never mutated. Rotation happens via redeploy.
	secret := os.Getenv("SHOPLANE_AUTH_SECRET")
	if secret == "" {
		log.Fatal("SHOPLANE_AUTH_SECRET is required")
	}
	codec, err := token.NewCodec(secret)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	dsn := os.Getenv("SHOPLANE_PG_DSN")
	if dsn == "" {
		log.Fatal("SHOPLANE_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	svc, err := auth.NewService(store.Users(), store.Grants(), codec)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(svc, httpapi.DefaultPolicy(), httpapi.ReadyProbe{DB: store.DB()}, version)

	addr := os.Getenv("SHOPLANE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting shoplane-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
