package main

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/gateway"
	"github.com/mcdev12/kiosk/go/internal/menu"
	"github.com/mcdev12/kiosk/go/internal/rpc"
	"github.com/mcdev12/kiosk/go/internal/staff"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Register services
	registerServices(mux, services)

	// Realtime gateway routes (/realtime/ws, presence, stats)
	services.Gateway.RegisterRoutes(mux)

	// Add health check endpoint
	setupHealthCheck(mux)

	// Claims on every request, then CORS
	var handler http.Handler = auth.Middleware(services.Issuer, mux)
	handler = gateway.CORSMiddleware(cfg.Server.AllowedOrigins)(handler)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	interceptors := connect.WithInterceptors(
		rpc.LoggingInterceptor(),
		rpc.AuthInterceptor(services.Issuer),
	)

	// Register staff service
	staffPath, staffHandler := staff.NewHandler(services.Staff, interceptors)
	mux.Handle(staffPath, staffHandler)

	// Register menu service
	menuPath, menuHandler := menu.NewHandler(services.Menu, interceptors)
	mux.Handle(menuPath, menuHandler)

	// Direct image uploads
	services.Uploads.RegisterRoutes(mux)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

// allowOrigins matches the websocket Origin header against configured origins
func allowOrigins(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}
