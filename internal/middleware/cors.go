package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS returns a configured CORS middleware. An empty origin list or "*"
// allows every origin.
func CORS(origins, methods, headers []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.ExposeHeaders = []string{requestIDHeader}
	cfg.MaxAge = 12 * time.Hour

	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	if len(methods) > 0 {
		cfg.AllowMethods = methods
	}
	if len(headers) > 0 {
		cfg.AllowHeaders = headers
	} else {
		cfg.AddAllowHeaders(apiKeyHeader, "Authorization", requestIDHeader)
	}

	return cors.New(cfg)
}
