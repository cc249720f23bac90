package api

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/tutorchat/internal/logger"
)

var accessLog = logger.New("http")

// Query parameters that carry credentials
var redactedParams = []string{"token"}

// AccessLog writes one line per request through the component logger.
// Credentials in the query string are never logged.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := accessLog.With(
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
		uri := redactedURI(c.Request.URL)

		switch {
		case status >= 500:
			entry.Error("%s %s", c.Request.Method, uri)
		case status >= 400:
			entry.Warn("%s %s", c.Request.Method, uri)
		default:
			entry.Info("%s %s", c.Request.Method, uri)
		}
	}
}

func redactedURI(u *url.URL) string {
	if u.RawQuery == "" {
		return u.RequestURI()
	}

	clean := *u
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		// A malformed query may still hold a credential
		clean.RawQuery = "unparsed"
		return clean.RequestURI()
	}
	for _, name := range redactedParams {
		if q.Has(name) {
			q.Set(name, "redacted")
		}
	}
	clean.RawQuery = q.Encode()
	return clean.RequestURI()
}
