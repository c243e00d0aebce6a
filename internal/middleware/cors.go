package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSOptions configures cross-origin access. List fields are comma-separated.
type CORSOptions struct {
	// AllowedOrigins is "*" or a list such as "http://localhost:3000,https://review.example".
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
	// ExposedHeaders lets players read range responses.
	ExposedHeaders string
	MaxAgeSeconds  int
}

// DefaultCORSOptions covers the video API: reads, uploads, deletes and ranged HLS fetches.
func DefaultCORSOptions() CORSOptions {
	return CORSOptions{
		AllowedOrigins: "*",
		AllowedMethods: "GET, POST, DELETE, OPTIONS",
		AllowedHeaders: "Content-Type, Range",
		ExposedHeaders: "Content-Length, Content-Range",
		MaxAgeSeconds:  86400,
	}
}

// CORS returns a middleware that sets CORS headers for allowed origins and
// answers preflight requests.
func CORS(opts CORSOptions) gin.HandlerFunc {
	def := DefaultCORSOptions()
	if opts.AllowedMethods == "" {
		opts.AllowedMethods = def.AllowedMethods
	}
	if opts.AllowedHeaders == "" {
		opts.AllowedHeaders = def.AllowedHeaders
	}
	origins := splitList(opts.AllowedOrigins)
	anyOrigin := len(origins) == 0 || origins["*"]
	maxAge := ""
	if opts.MaxAgeSeconds > 0 {
		maxAge = strconv.Itoa(opts.MaxAgeSeconds)
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		if anyOrigin {
			allowOrigin = "*"
		} else if origin != "" && origins[origin] {
			allowOrigin = origin
			c.Header("Vary", "Origin")
		}
		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""

		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			if preflight {
				c.Header("Access-Control-Allow-Methods", opts.AllowedMethods)
				c.Header("Access-Control-Allow-Headers", opts.AllowedHeaders)
				if maxAge != "" {
					c.Header("Access-Control-Max-Age", maxAge)
				}
			} else if opts.ExposedHeaders != "" {
				c.Header("Access-Control-Expose-Headers", opts.ExposedHeaders)
			}
		}
		if preflight {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func splitList(s string) map[string]bool {
	m := make(map[string]bool)
	for _, o := range strings.Split(strings.TrimSpace(s), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			m[o] = true
		}
	}
	return m
}
