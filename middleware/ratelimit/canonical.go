package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// CanonicalHost redireciona (308) requisições cujo Host difere do host
// canônico, preservando path e query. host vazio desliga o redirecionamento.
func CanonicalHost(host string) func(next http.Handler) http.Handler {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(stripPort(r.Host), stripPort(host)) {
				next.ServeHTTP(w, r)
				return
			}

			scheme := "http"
			if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
				scheme = "https"
			}
			http.Redirect(w, r, scheme+"://"+host+r.URL.RequestURI(), http.StatusPermanentRedirect)
		})
	}
}

func stripPort(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}
