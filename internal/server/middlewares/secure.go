package middlewares

import (
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// SecureHeaders sets browser hardening headers on every response. HSTS and
// the https redirect only apply when the server terminates TLS itself.
func SecureHeaders(tls bool) gin.HandlerFunc {
	return secure.New(secure.Config{
		IsDevelopment:        !tls,
		SSLRedirect:          tls,
		STSSeconds:           31536000,
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		IENoOpen:             true,
		ReferrerPolicy:       "no-referrer",
		SSLProxyHeaders:      map[string]string{"X-Forwarded-Proto": "https"},
	})
}
