package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/contacts/pkg/logger"
)

const testAuthority = "https://issuer.test/identity"

var (
	signingKey *rsa.PrivateKey
	rotatedKey *rsa.PrivateKey
)

func init() {
	if err := logger.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
	var err error
	if signingKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
		panic(err)
	}
	if rotatedKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
		panic(err)
	}
}

type tokenSpec struct {
	kid      string
	key      *rsa.PrivateKey
	issuer   string
	audience string
	subject  string
	scope    any
	expires  time.Time
	method   jwt.SigningMethod
}

func validToken() tokenSpec {
	return tokenSpec{
		kid:     "k1",
		key:     signingKey,
		issuer:  testAuthority,
		subject: "client-1",
		scope:   "read write",
		expires: time.Now().Add(time.Hour),
		method:  jwt.SigningMethodRS256,
	}
}

func mint(ts tokenSpec) string {
	claims := jwt.MapClaims{
		"iss": ts.issuer,
		"sub": ts.subject,
		"iat": time.Now().Add(-time.Minute).Unix(),
		"exp": ts.expires.Unix(),
	}
	if ts.audience != "" {
		claims["aud"] = ts.audience
	}
	if ts.scope != nil {
		claims["scope"] = ts.scope
	}
	tok := jwt.NewWithClaims(ts.method, claims)
	if ts.kid != "" {
		tok.Header["kid"] = ts.kid
	}

	var signKey any = ts.key
	if _, ok := ts.method.(*jwt.SigningMethodHMAC); ok {
		signKey = []byte("shared-secret")
	}
	raw, err := tok.SignedString(signKey)
	if err != nil {
		panic(err)
	}
	return raw
}

// issuer serves a discovery document and a switchable key set.
type issuer struct {
	srv *httptest.Server

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	failing bool

	jwksHits atomic.Int32
}

func newIssuer(keys map[string]*rsa.PublicKey) *issuer {
	is := &issuer{keys: keys}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   is.srv.URL,
			"jwks_uri": is.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		is.jwksHits.Add(1)
		is.mu.Lock()
		defer is.mu.Unlock()
		if is.failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		set := map[string][]map[string]string{"keys": {}}
		for kid, k := range is.keys {
			set["keys"] = append(set["keys"], map[string]string{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": kid,
				"n":   base64.RawURLEncoding.EncodeToString(k.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.E)).Bytes()),
			})
		}
		_ = json.NewEncoder(w).Encode(set)
	})
	is.srv = httptest.NewServer(mux)
	return is
}

func (is *issuer) setKeys(keys map[string]*rsa.PublicKey) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.keys = keys
}

func (is *issuer) setFailing(f bool) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.failing = f
}

func (is *issuer) Close() { is.srv.Close() }

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
