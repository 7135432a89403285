// Package redirect moves plaintext HTTP clients over to the TLS listener.
package redirect

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"

	"github.com/okian/contacts/pkg/logger"
)

// Redirector sends plaintext requests to the https origin of the service.
type Redirector struct {
	port       string
	status     int
	trustProxy bool
}

// Option applies a configuration option to the Redirector.
type Option func(*Redirector)

// WithStatus sets the redirect status code. Only 301, 302, 307 and 308 are
// accepted.
func WithStatus(code int) Option {
	return func(r *Redirector) {
		switch code {
		case http.StatusMovedPermanently, http.StatusFound,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			r.status = code
		}
	}
}

// WithTrustProxyHeaders makes Enforce honour X-Forwarded-Proto and related
// headers. Enable it only behind a proxy that overwrites them; otherwise a
// client can claim https and skip the redirect.
func WithTrustProxyHeaders(trust bool) Option {
	return func(r *Redirector) {
		r.trustProxy = trust
	}
}

// New creates a Redirector targeting the port of httpsAddr (for example
// ":5001"). Port 443 and an address without a port produce URLs without an
// explicit port.
func New(httpsAddr string, opts ...Option) *Redirector {
	r := &Redirector{
		port:   portOf(httpsAddr),
		status: http.StatusTemporaryRedirect,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler redirects every request.
func (rd *Redirector) Handler() http.Handler {
	return http.HandlerFunc(rd.redirect)
}

// Enforce serves requests that already arrived over https and redirects the
// rest. Forwarded headers count only with WithTrustProxyHeaders.
func (rd *Redirector) Enforce(next http.Handler) http.Handler {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil || (rd.trustProxy && strings.EqualFold(r.URL.Scheme, "https")) {
			next.ServeHTTP(w, r)
			return
		}
		rd.redirect(w, r)
	})
	if rd.trustProxy {
		return handlers.ProxyHeaders(h)
	}
	return h
}

// Target returns the https URL for r.
func (rd *Redirector) Target(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if rd.port != "" && rd.port != "443" {
		host = net.JoinHostPort(host, rd.port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return "https://" + host + r.URL.RequestURI()
}

func (rd *Redirector) redirect(w http.ResponseWriter, r *http.Request) {
	target := rd.Target(r)
	logger.FromContext(r.Context()).Debug(r.Context(), "redirecting to https", logger.String("location", target))
	http.Redirect(w, r, target, rd.status)
}

func portOf(addr string) string {
	if _, port, err := net.SplitHostPort(addr); err == nil {
		return port
	}
	return ""
}
