package smoke

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jessevdk/go-flags"
	"golang.org/x/oauth2"

	"github.com/okian/contacts/pkg/client"
)

// ErrHelp is returned when the user asked for usage text.
var ErrHelp = errors.New("help requested")

// Main parses args and runs one smoke run against the configured API.
func Main(ctx context.Context, args []string) error {
	opts := &Options{}
	if _, err := flags.ParseArgs(opts, args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return ErrHelp
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Deadline)
	defer cancel()

	stats, err := NewRunner(NewClient(ctx, opts), *opts).Run(ctx)
	if err != nil {
		return err
	}
	if stats.Mismatched > 0 {
		return fmt.Errorf("%w: %d mismatches", ErrVerification, stats.Mismatched)
	}
	return nil
}

// NewClient builds an API client from opts. A token URL selects the client
// credentials grant, otherwise a static token is used when given.
func NewClient(ctx context.Context, opts *Options) *client.Client {
	httpClient := &http.Client{}
	if opts.Insecure {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for local dev certificates
		}
	}

	copts := []client.Option{client.WithHTTPClient(httpClient)}
	switch {
	case opts.TokenURL != "":
		copts = append(copts, client.WithClientCredentials(ctx, opts.TokenURL, opts.ClientID, opts.ClientSecret, opts.Scope...))
	case strings.TrimSpace(opts.Token) != "":
		copts = append(copts, client.WithTokenSource(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: strings.TrimSpace(opts.Token),
			TokenType:   "Bearer",
		})))
	}
	return client.New(opts.URL, copts...)
}
