// Package client is a typed HTTP client for the contacts API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/okian/contacts/internal/domain/model"
)

// Sentinel kinds for API responses. Returned errors wrap one of them and a
// *StatusError.
var (
	ErrNotFound         = errors.New("contact not found")
	ErrBadRequest       = errors.New("request rejected")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// StatusError carries a non-success response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Client talks to one contacts API base URL.
type Client struct {
	base string
	http *http.Client
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTokenSource authenticates every request with tokens from ts.
func WithTokenSource(ctx context.Context, ts oauth2.TokenSource) Option {
	return func(cl *Client) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cl.http)
		cl.http = oauth2.NewClient(ctx, ts)
	}
}

// WithClientCredentials obtains tokens from tokenURL with the OAuth2 client
// credentials grant.
func WithClientCredentials(ctx context.Context, tokenURL, clientID, secret string, scopes ...string) Option {
	return func(cl *Client) {
		cfg := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: secret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cl.http)
		cl.http = cfg.Client(ctx)
	}
}

// New creates a client for the API at baseURL, for example
// "https://localhost:5001".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns every contact.
func (c *Client) List(ctx context.Context) ([]model.Contact, error) {
	var out []model.Contact
	if err := c.do(ctx, http.MethodGet, "/contacts", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one contact or an error wrapping ErrNotFound.
func (c *Client) Get(ctx context.Context, id model.ContactID) (model.Contact, error) {
	var out model.Contact
	if err := c.do(ctx, http.MethodGet, contactPath(id), nil, http.StatusOK, &out); err != nil {
		return model.Contact{}, err
	}
	return out, nil
}

// Create stores ct and returns it with its assigned id.
func (c *Client) Create(ctx context.Context, ct model.Contact) (model.Contact, error) {
	var out model.Contact
	if err := c.do(ctx, http.MethodPost, "/contacts", &ct, http.StatusCreated, &out); err != nil {
		return model.Contact{}, err
	}
	return out, nil
}

// Update replaces the contact stored under ct.ContactID.
func (c *Client) Update(ctx context.Context, ct model.Contact) error {
	return c.do(ctx, http.MethodPut, contactPath(ct.ContactID), &ct, http.StatusNoContent, nil)
}

// Delete removes the contact stored under id.
func (c *Client) Delete(ctx context.Context, id model.ContactID) error {
	return c.do(ctx, http.MethodDelete, contactPath(id), nil, http.StatusNoContent, nil)
}

func contactPath(id model.ContactID) string {
	return fmt.Sprintf("/contacts/%d", id)
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s %s: %w: %w", method, path, kindOf(resp.StatusCode),
			&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))})
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func kindOf(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	default:
		return ErrUnexpectedStatus
	}
}
