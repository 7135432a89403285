package redirect_test

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/contacts/internal/adapters/http/redirect"
	"github.com/okian/contacts/pkg/logger"
)

func init() {
	if err := logger.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
}

func TestRedirector(t *testing.T) {
	Convey("Given a redirector for :5001", t, func() {
		rd := redirect.New(":5001")

		Convey("Every request is redirected with 307", func() {
			req := httptest.NewRequest(http.MethodPost, "http://localhost:5000/contacts?x=1", http.NoBody)
			w := httptest.NewRecorder()
			rd.Handler().ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusTemporaryRedirect)
			So(w.Header().Get("Location"), ShouldEqual, "https://localhost:5001/contacts?x=1")
		})

		Convey("Hosts without a port get the https port", func() {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/contacts/1", http.NoBody)
			So(rd.Target(req), ShouldEqual, "https://example.com:5001/contacts/1")
		})

		Convey("IPv6 hosts keep their brackets", func() {
			req := httptest.NewRequest(http.MethodGet, "http://[::1]:5000/contacts", http.NoBody)
			So(rd.Target(req), ShouldEqual, "https://[::1]:5001/contacts")
		})
	})

	Convey("Given a redirector for the default https port", t, func() {
		rd := redirect.New(":443", redirect.WithStatus(http.StatusPermanentRedirect))

		Convey("The port is omitted and the status is configurable", func() {
			req := httptest.NewRequest(http.MethodGet, "http://example.com:80/contacts", http.NoBody)
			w := httptest.NewRecorder()
			rd.Handler().ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusPermanentRedirect)
			So(w.Header().Get("Location"), ShouldEqual, "https://example.com/contacts")
		})

		Convey("Unsupported status codes are ignored", func() {
			rd := redirect.New(":443", redirect.WithStatus(http.StatusOK))
			w := httptest.NewRecorder()
			rd.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example.com/", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusTemporaryRedirect)
		})
	})

	Convey("Given an enforcing wrapper", t, func() {
		served := false
		next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			served = true
			w.WriteHeader(http.StatusOK)
		})
		h := redirect.New(":5001").Enforce(next)

		Convey("Plain http is redirected", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost:5000/contacts", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusTemporaryRedirect)
			So(served, ShouldBeFalse)
		})

		Convey("Forwarded headers are ignored by default", func() {
			req := httptest.NewRequest(http.MethodGet, "http://localhost:5000/contacts", http.NoBody)
			req.Header.Set("X-Forwarded-Proto", "https")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusTemporaryRedirect)
			So(served, ShouldBeFalse)
		})

		Convey("Requests forwarded as https pass through behind a trusted proxy", func() {
			trusted := redirect.New(":5001", redirect.WithTrustProxyHeaders(true)).Enforce(next)
			req := httptest.NewRequest(http.MethodGet, "http://localhost:5000/contacts", http.NoBody)
			req.Header.Set("X-Forwarded-Proto", "https")
			w := httptest.NewRecorder()
			trusted.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(served, ShouldBeTrue)
		})

		Convey("A trusted proxy forwarding plain http is still redirected", func() {
			trusted := redirect.New(":5001", redirect.WithTrustProxyHeaders(true)).Enforce(next)
			req := httptest.NewRequest(http.MethodGet, "http://localhost:5000/contacts", http.NoBody)
			req.Header.Set("X-Forwarded-Proto", "http")
			w := httptest.NewRecorder()
			trusted.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusTemporaryRedirect)
			So(served, ShouldBeFalse)
		})

		Convey("TLS requests pass through", func() {
			req := httptest.NewRequest(http.MethodGet, "https://localhost:5001/contacts", http.NoBody)
			req.TLS = &tls.ConnectionState{}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(served, ShouldBeTrue)
		})
	})
}
