package middleware

import (
	"net/http"
	"strings"
)

// cspDirectives allow the booking pages to load the payment provider's hosted
// checkout and Google-hosted fonts while locking everything else to self.
var cspDirectives = []string{
	"default-src 'self'",
	"script-src 'self' https://js.stripe.com https://fonts.googleapis.com",
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com",
	"font-src 'self' https://fonts.gstatic.com data:",
	"img-src 'self' data: https:",
	"frame-src 'self' https://js.stripe.com https://hooks.stripe.com",
	"connect-src 'self' https://api.stripe.com",
	"base-uri 'self'",
	"form-action 'self' https://checkout.stripe.com",
	"frame-ancestors 'none'",
	"object-src 'none'",
}

// SecurityHeaders adds defensive response headers to every response and
// disables caching on staff pages.
func SecurityHeaders(next http.Handler) http.Handler {
	csp := strings.Join(cspDirectives, "; ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", csp)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy",
			"accelerometer=(), camera=(), geolocation=(), gyroscope=(), "+
				`magnetometer=(), microphone=(), payment=(self "https://js.stripe.com"), usb=()`)

		if strings.HasPrefix(r.URL.Path, "/staff/") {
			h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			h.Set("Pragma", "no-cache")
		}

		next.ServeHTTP(w, r)
	})
}
