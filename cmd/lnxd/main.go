// Command lnxd is the composition root: it loads configuration,
// constructs an empty registry (no durable store is opened and no index
// is loaded here), and exposes a thin stub
// router over the §4.7 path table. The REST surface itself is
// peripheral and intentionally minimal (§ Non-goals) — this demonstrates
// the auth/registry wiring boundary, not a full HTTP API.
//
// Grounded on the teacher's adminport/admin_httpd.go http.Server
// lifecycle (listen, serve, graceful Stop) translated onto
// gorilla/mux for routing.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/lnx-search/lnx-engine/auth"
	"github.com/lnx-search/lnx-engine/internal/config"
	"github.com/lnx-search/lnx-engine/internal/logging"
	"github.com/lnx-search/lnx-engine/internal/metrics"
	"github.com/lnx-search/lnx-engine/registry"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	log := logging.For("lnxd", "-")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("lnxd: load config")
	}
	logging.SetLevel(parseLevel(cfg.LogLevel))

	reg := registry.New()

	router := newRouter(reg, nil, log)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", *addr).Msg("lnxd: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("lnxd: serve")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("lnxd: graceful shutdown failed")
		os.Exit(1)
	}
}

// newRouter builds the stub mux described by §4.7's path table. Each
// handler enforces the derived permission (when mgr is non-nil) and
// otherwise returns 501, since the request bodies/routes themselves are
// out of scope (§ Non-goals: "REST layer itself out of scope").
func newRouter(reg *registry.Registry, mgr *auth.Manager, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Path("/metrics").Handler(metrics.Handler())
	r.PathPrefix("/auth").HandlerFunc(stubHandler(mgr, auth.PermModifyAuth, log))
	r.Path("/indexes").HandlerFunc(stubHandler(mgr, auth.PermModifyEngine, log))
	r.PathPrefix("/indexes/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		perm, ok := auth.RequiredPermission(req.URL.Path)
		if !ok {
			http.NotFound(w, req)
			return
		}
		stubHandler(mgr, perm, log)(w, req)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	})

	return r
}

func stubHandler(mgr *auth.Manager, required auth.Permission, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if mgr != nil {
			tok := req.Header.Get("Authorization")
			if tok == "" {
				http.Error(w, `{"detail":"missing Authorization header"}`, http.StatusUnauthorized)
				return
			}
			t, err := mgr.Lookup(req.Context(), tok)
			if err != nil {
				http.Error(w, `{"detail":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if !t.Permissions.Has(required) {
				http.Error(w, `{"detail":"insufficient permissions"}`, http.StatusUnauthorized)
				return
			}
		}

		log.Debug().Str("path", req.URL.Path).Msg("lnxd: stub route hit")
		http.Error(w, `{"detail":"not implemented"}`, http.StatusNotImplemented)
	}
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
