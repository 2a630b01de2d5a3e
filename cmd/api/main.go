package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"medguard.org/internal/audit"
	"medguard.org/internal/auth"
	"medguard.org/internal/cache"
	"medguard.org/internal/fieldcipher"
	"medguard.org/internal/health"
	"medguard.org/internal/httpapi"
	"medguard.org/internal/obs"
)

var version = "0.3.1"

func main() {
	metrics := obs.NewRegistry()
	metrics.SetBuildInfo(version, os.Getenv("MEDGUARD_COMMIT"))

	// Database is optional in dev: without a DSN the user directory is
	// unavailable and audits go to the log sink.
	var db *sql.DB
	if dsn := os.Getenv("MEDGUARD_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var sink audit.Sink = audit.LogSink{}
	if db != nil {
		sink = audit.NewPGSink(db, metrics)
	}
	trail := audit.NewPipeline(sink, metrics)

	var dir auth.Directory
	if db != nil {
		dir = auth.NewPGDirectory(db, metrics)
	} else {
		dir = emptyDirectory{}
	}

	svc := auth.NewService(
		dir,
		auth.NewAttemptTracker(metrics, trail),
		auth.NewSessionRegistry(metrics, trail),
		fieldcipher.New(metrics),
		metrics,
		auth.WithDirectoryCache(cache.NewMemory(metrics)),
	)

	var probe health.DatabaseProber
	if db != nil {
		probe = &health.PGProbe{DB: db}
	}
	evaluator := health.NewEvaluator(probe, metrics)

	api := httpapi.New(svc, evaluator, metrics, httpapi.ReadyProbe{DB: db}, version)

	addr := os.Getenv("MEDGUARD_ADDR")
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

	log.Printf("Starting medguard-api %s on %s", version, srv.Addr)

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
	// Pending audit events are abandoned; best-effort logging extends to
	// shutdown.
	trail.Close()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// emptyDirectory rejects every lookup; used when no database is configured.
type emptyDirectory struct{}

func (emptyDirectory) Lookup(context.Context, string) (*auth.UserRecord, error) {
	return nil, auth.ErrNotFound
}
