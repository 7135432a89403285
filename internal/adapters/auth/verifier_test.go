package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/contacts/internal/adapters/auth"
)

func TestVerifier(t *testing.T) {
	Convey("Given a verifier with a static key", t, func() {
		ctx := context.Background()
		keys := &auth.StaticKeySource{Keys: map[string]any{"k1": &signingKey.PublicKey}}
		v := auth.NewVerifier(keys, auth.WithIssuer(testAuthority), auth.WithLeeway(time.Second))

		Convey("A valid token yields its principal", func() {
			p, err := v.Verify(ctx, mint(validToken()))
			So(err, ShouldBeNil)
			So(p.Subject, ShouldEqual, "client-1")
			So(p.Issuer, ShouldEqual, testAuthority)
			So(p.Scopes, ShouldResemble, []string{"read", "write"})
			So(p.HasScope("write"), ShouldBeTrue)
			So(p.HasScope("admin"), ShouldBeFalse)
		})

		Convey("A scope claim given as an array is accepted", func() {
			ts := validToken()
			ts.scope = []string{"contacts", "write"}
			p, err := v.Verify(ctx, mint(ts))
			So(err, ShouldBeNil)
			So(p.HasScope("write"), ShouldBeTrue)
		})

		Convey("Scope strings split on whitespace and match exactly", func() {
			ts := validToken()
			ts.scope = "contacts.write\tWRITE  read"
			p, err := v.Verify(ctx, mint(ts))
			So(err, ShouldBeNil)
			So(p.Scopes, ShouldResemble, []string{"contacts.write", "WRITE", "read"})
			So(p.HasScope("read"), ShouldBeTrue)
			So(p.HasScope("write"), ShouldBeFalse)
		})

		Convey("A token without scope has no scopes", func() {
			ts := validToken()
			ts.scope = nil
			p, err := v.Verify(ctx, mint(ts))
			So(err, ShouldBeNil)
			So(p.HasScope("write"), ShouldBeFalse)
		})

		Convey("An empty token is missing", func() {
			_, err := v.Verify(ctx, "")
			So(errors.Is(err, auth.ErrMissingToken), ShouldBeTrue)
		})

		Convey("Invalid tokens are rejected", func() {
			cases := []struct {
				name   string
				mutate func(*tokenSpec)
			}{
				{"expired", func(ts *tokenSpec) { ts.expires = time.Now().Add(-time.Hour) }},
				{"wrong issuer", func(ts *tokenSpec) { ts.issuer = "https://evil.test" }},
				{"unknown kid", func(ts *tokenSpec) { ts.kid = "k9" }},
				{"wrong key", func(ts *tokenSpec) { ts.key = rotatedKey }},
				{"hmac signed", func(ts *tokenSpec) { ts.method = jwt.SigningMethodHS256 }},
			}
			for _, tc := range cases {
				Convey(tc.name, func() {
					ts := validToken()
					tc.mutate(&ts)
					_, err := v.Verify(ctx, mint(ts))
					So(errors.Is(err, auth.ErrInvalidToken), ShouldBeTrue)
				})
			}
		})

		Convey("Garbage is rejected", func() {
			_, err := v.Verify(ctx, "not-a-jwt")
			So(errors.Is(err, auth.ErrInvalidToken), ShouldBeTrue)
		})

		Convey("An audience is enforced when configured", func() {
			av := auth.NewVerifier(keys, auth.WithIssuer(testAuthority), auth.WithAudience("contacts"))

			_, err := av.Verify(ctx, mint(validToken()))
			So(errors.Is(err, auth.ErrInvalidToken), ShouldBeTrue)

			ts := validToken()
			ts.audience = "contacts"
			_, err = av.Verify(ctx, mint(ts))
			So(err, ShouldBeNil)
		})
	})

	Convey("Given a static key source with a default key", t, func() {
		keys := &auth.StaticKeySource{Default: &signingKey.PublicKey}

		Convey("Tokens without kid verify", func() {
			ts := validToken()
			ts.kid = ""
			_, err := auth.NewVerifier(keys).Verify(context.Background(), mint(ts))
			So(err, ShouldBeNil)
		})
	})
}
