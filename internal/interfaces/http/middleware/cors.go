package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig holds configuration for CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists permitted origins. "*" allows all and is
	// refused together with AllowCredentials.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
	// AllowWildcard enables patterns such as https://*.example.com.
	AllowWildcard bool
}

// DefaultCORSConfig returns the default policy for the given origins.
func DefaultCORSConfig(origins ...string) CORSConfig {
	return CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         12 * time.Hour,
	}
}

// CORS returns the gin-contrib/cors handler for config. With no origins it
// returns a pass-through handler.
func CORS(config CORSConfig) gin.HandlerFunc {
	if len(config.AllowedOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	cc := cors.Config{
		AllowMethods:     config.AllowedMethods,
		AllowHeaders:     config.AllowedHeaders,
		ExposeHeaders:    config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
		AllowWildcard:    config.AllowWildcard,
	}
	for _, o := range config.AllowedOrigins {
		if o == "*" && !config.AllowCredentials {
			cc.AllowAllOrigins = true
			cc.AllowOrigins = nil
			break
		}
		if o != "*" {
			cc.AllowOrigins = append(cc.AllowOrigins, o)
		}
	}
	if !cc.AllowAllOrigins && len(cc.AllowOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cc)
}
