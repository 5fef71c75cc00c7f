package gateway

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware allows browser kiosks and kitchen displays on other origins
// to reach the API and gateway routes
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Connect-Protocol-Version"},
		MaxAge:           86400,
		AllowCredentials: false,
	})
	return c.Handler
}
