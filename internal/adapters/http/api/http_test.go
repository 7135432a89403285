package api_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/contacts/internal/adapters/auth"
	"github.com/okian/contacts/internal/adapters/http/api"
	service "github.com/okian/contacts/internal/app"
	"github.com/okian/contacts/internal/domain/model"
	"github.com/okian/contacts/pkg/logger"
)

const issuer = "https://localhost:5001/identity"

var signingKey *rsa.PrivateKey

func init() {
	if err := logger.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
	var err error
	if signingKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
		panic(err)
	}
}

func token(scope string) string {
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": "tester",
		"iat": time.Now().Add(-time.Minute).Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if scope != "" {
		claims["scope"] = scope
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return raw
}

func apiPolicy() auth.Policy {
	v := auth.NewVerifier(&auth.StaticKeySource{Default: &signingKey.PublicKey}, auth.WithIssuer(issuer))
	return auth.RequireScopePolicy("API", v, "write")
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

type fixture struct {
	svc     *service.Service
	handler http.Handler
}

func newFixture(seed ...model.Contact) *fixture {
	svc := service.New(service.WithSeed(seed...))
	server := api.NewServer(svc, &mockStatsProvider{stats: map[string]any{"started": true}}, apiPolicy())
	return &fixture{svc: svc, handler: server.Handler()}
}

func (f *fixture) do(method, path, bearer, body string) *httptest.ResponseRecorder {
	var rdr io.Reader = http.NoBody
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) all() []model.Contact {
	return f.svc.GetAll(context.Background())
}

func seeds() []model.Contact {
	return []model.Contact{
		{Name: "Ada", Email: "ada@example.com"},
		{Name: "Grace", City: "Arlington"},
		{Name: "Linus", Phone: "555-0100"},
	}
}

func TestContactsRead(t *testing.T) {
	Convey("Given an API with three contacts", t, func() {
		f := newFixture(seeds()...)

		Convey("GET /contacts returns all of them", func() {
			w := f.do(http.MethodGet, "/contacts", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

			var got []model.Contact
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got, ShouldHaveLength, 3)
		})

		Convey("GET /contacts/2 returns one contact", func() {
			w := f.do(http.MethodGet, "/contacts/2", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var got model.Contact
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got.ContactID, ShouldEqual, 2)
			So(got.Name, ShouldEqual, "Grace")
			So(got.City, ShouldEqual, "Arlington")
		})

		Convey("GET /contacts/999 is 404 with an empty body", func() {
			w := f.do(http.MethodGet, "/contacts/999", "", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(w.Body.Len(), ShouldEqual, 0)
		})

		Convey("GET /contacts/abc is 400", func() {
			w := f.do(http.MethodGet, "/contacts/abc", "", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "invalid_id")
		})

		Convey("Reads need no token", func() {
			w := f.do(http.MethodGet, "/contacts/1", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})

	Convey("Given an empty API", t, func() {
		f := newFixture()

		Convey("GET /contacts returns an empty array", func() {
			w := f.do(http.MethodGet, "/contacts", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})
	})
}

func TestContactsWritePolicy(t *testing.T) {
	Convey("Given an API with three contacts", t, func() {
		f := newFixture(seeds()...)
		before := len(f.all())

		Convey("POST without a token is 401 and stores nothing", func() {
			w := f.do(http.MethodPost, "/contacts", "", `{"name":"Eve"}`)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(w.Header().Get("WWW-Authenticate"), ShouldStartWith, "Bearer")
			So(f.all(), ShouldHaveLength, before)
		})

		Convey("POST with an invalid token is 401", func() {
			w := f.do(http.MethodPost, "/contacts", "garbage", `{"name":"Eve"}`)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(f.all(), ShouldHaveLength, before)
		})

		Convey("POST without write scope is 403 and stores nothing", func() {
			w := f.do(http.MethodPost, "/contacts", token("read"), `{"name":"Eve"}`)
			So(w.Code, ShouldEqual, http.StatusForbidden)
			So(f.all(), ShouldHaveLength, before)
		})

		Convey("PUT without write scope is 403 and changes nothing", func() {
			w := f.do(http.MethodPut, "/contacts/1", token(""), `{"name":"Eve"}`)
			So(w.Code, ShouldEqual, http.StatusForbidden)

			c, err := f.svc.Get(context.Background(), 1)
			So(err, ShouldBeNil)
			So(c.Name, ShouldEqual, "Ada")
		})

		Convey("DELETE without a token is 401 and removes nothing", func() {
			w := f.do(http.MethodDelete, "/contacts/1", "", "")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(f.all(), ShouldHaveLength, before)
		})
	})
}

func TestContactsWrite(t *testing.T) {
	Convey("Given an API with three contacts and a write token", t, func() {
		f := newFixture(seeds()...)
		tok := token("write")

		Convey("POST stores a new contact", func() {
			w := f.do(http.MethodPost, "/contacts", tok, `{"name":"Ada"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Header().Get("Location"), ShouldEqual, "/contacts/4")

			var got model.Contact
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got.ContactID, ShouldEqual, 4)
			So(got.Name, ShouldEqual, "Ada")
			So(f.all(), ShouldHaveLength, 4)
		})

		Convey("POST ignores a client supplied id", func() {
			w := f.do(http.MethodPost, "/contacts", tok, `{"contactId":1,"name":"Mallory"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)

			first, err := f.svc.Get(context.Background(), 1)
			So(err, ShouldBeNil)
			So(first.Name, ShouldEqual, "Ada")
		})

		Convey("POST with a bad body is 400", func() {
			for _, body := range []string{`{"name":`, `[1,2]`, `null`, `{"name":42}`} {
				w := f.do(http.MethodPost, "/contacts", tok, body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			w := f.do(http.MethodPost, "/contacts", tok, "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(f.all(), ShouldHaveLength, 3)
		})

		Convey("PUT /contacts/3 replaces it", func() {
			w := f.do(http.MethodPut, "/contacts/3", tok, `{"contactId":99,"name":"Linus T.","city":"Portland"}`)
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(w.Body.Len(), ShouldEqual, 0)

			c, err := f.svc.Get(context.Background(), 3)
			So(err, ShouldBeNil)
			So(c.Name, ShouldEqual, "Linus T.")
			So(c.City, ShouldEqual, "Portland")
			So(c.Phone, ShouldBeEmpty)
		})

		Convey("PUT of an unknown id is 204 and changes nothing", func() {
			w := f.do(http.MethodPut, "/contacts/42", tok, `{"name":"Ghost"}`)
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(f.all(), ShouldHaveLength, 3)
		})

		Convey("PUT with a bad id or body is 400", func() {
			So(f.do(http.MethodPut, "/contacts/abc", tok, `{"name":"x"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do(http.MethodPut, "/contacts/1", tok, `nope`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("DELETE twice is 204 both times", func() {
			So(f.do(http.MethodDelete, "/contacts/3", tok, "").Code, ShouldEqual, http.StatusNoContent)
			So(f.do(http.MethodDelete, "/contacts/3", tok, "").Code, ShouldEqual, http.StatusNoContent)
			So(f.do(http.MethodGet, "/contacts/3", "", "").Code, ShouldEqual, http.StatusNotFound)
			So(f.all(), ShouldHaveLength, 2)
		})

		Convey("DELETE with a bad id is 400", func() {
			So(f.do(http.MethodDelete, "/contacts/x1", tok, "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Deleted ids are not reused", func() {
			f.do(http.MethodDelete, "/contacts/3", tok, "")
			w := f.do(http.MethodPost, "/contacts", tok, `{"name":"Next"}`)
			So(w.Header().Get("Location"), ShouldEqual, "/contacts/4")
		})
	})
}

func TestServerRoutes(t *testing.T) {
	Convey("Given a new API server", t, func() {
		f := newFixture()

		Convey("Health serves metrics", func() {
			w := f.do(http.MethodGet, "/healthz", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Stats serves JSON", func() {
			w := f.do(http.MethodGet, "/stats", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Unknown methods are rejected", func() {
			w := f.do(http.MethodPatch, "/contacts/1", "", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Request ids are echoed or minted", func() {
			req := httptest.NewRequest(http.MethodGet, "/contacts", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "req-1")
			w := httptest.NewRecorder()
			f.handler.ServeHTTP(w, req)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "req-1")

			w = f.do(http.MethodGet, "/contacts", "", "")
			So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
		})
	})
}

type panickingDeps struct{ api.Dependencies }

func (panickingDeps) GetAll(context.Context) []model.Contact { panic("boom") }

func TestServerRecovery(t *testing.T) {
	Convey("Given handlers that panic", t, func() {
		server := api.NewServer(panickingDeps{}, &mockStatsProvider{}, apiPolicy())

		Convey("The panic becomes a 500", func() {
			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contacts", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestChain(t *testing.T) {
	Convey("Chain runs middleware in list order", t, func() {
		var order []string
		mark := func(name string) api.Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}
		h := api.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			order = append(order, "handler")
		}), mark("a"), mark("b"))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		So(order, ShouldResemble, []string{"a", "b", "handler"})
	})
}
