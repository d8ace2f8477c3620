package bootstrap

import (
	"github.com/gin-gonic/gin"

	httpapi "github.com/turtacn/BioRx-Intelligence/internal/interfaces/http"
	"github.com/turtacn/BioRx-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/BioRx-Intelligence/internal/interfaces/http/middleware"
)

// Router builds the HTTP route tree over the App. The rate limiter it
// creates is stopped by Close.
func (a *App) Router(version string) *gin.Engine {
	gin.SetMode(a.Config.Server.Mode)

	rc := httpapi.RouterConfig{
		AnalysisHandler: handlers.NewAnalysisHandler(a.Service, a.Mode, a.Config.Document.MaxBytes, a.Logger),
		HealthHandler:   handlers.NewHealthHandler(version, a.HealthCheckers()...),
		Logger:          a.Logger,
		Metrics:         a.Metrics,
		MetricsPath:     a.Config.Metrics.Path,
		MetricsHandler:  a.MetricsHandler(),
	}
	if len(a.Config.Server.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig(a.Config.Server.CORSOrigins...)
		rc.CORS = &cors
	}
	if a.Config.Server.RateLimitRPS > 0 {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = a.Config.Server.RateLimitRPS
		rl.BurstSize = a.Config.Server.RateLimitBurst
		limiter := middleware.NewClientLimiter(rl)
		rc.RateLimiter = limiter
		a.closers = append(a.closers, func() error {
			limiter.Stop()
			return nil
		})
	}
	return httpapi.NewRouter(rc)
}
