package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// IdentityError is a failed call to the identity backend. Err is set for
// transport failures, StatusCode and Code for API rejections.
type IdentityError struct {
	Op         string
	StatusCode int
	Code       string
	Err        error
}

func (e *IdentityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[IdentityClient] %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("[IdentityClient] %s failed: status %d: %s", e.Op, e.StatusCode, e.Code)
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call may succeed.
func (e *IdentityError) Retryable() bool {
	switch {
	case e.Err != nil:
		return true
	case e.StatusCode >= 500, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.Code == "TOO_MANY_ATTEMPTS_TRY_LATER":
		return true
	}
	return false
}

type IdentityOption func(*IdentityClient)

// WithIdentityEndpoints overrides the identity toolkit and secure token base URLs.
func WithIdentityEndpoints(toolkitURL, secureTokenURL string) IdentityOption {
	return func(c *IdentityClient) {
		c.toolkitURL = toolkitURL
		c.secureTokenURL = secureTokenURL
	}
}

func WithIdentityHTTPClient(client *http.Client) IdentityOption {
	return func(c *IdentityClient) {
		c.client = client
	}
}

// IdentityClient creates and refreshes anonymous sessions for a project API key.
type IdentityClient struct {
	apiKey         string
	toolkitURL     string
	secureTokenURL string
	client         *http.Client
}

func NewIdentityClient(apiKey string, opts ...IdentityOption) *IdentityClient {
	c := &IdentityClient{
		apiKey:         apiKey,
		toolkitURL:     IDENTITY_TOOLKIT_URL,
		secureTokenURL: SECURE_TOKEN_URL,
		client:         &http.Client{Timeout: IDENTITY_HTTP_TIMEOUT},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type signUpRequest struct {
	ReturnSecureToken bool `json:"returnSecureToken"`
}

type signUpResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInAnonymously creates a new anonymous user and returns its session.
func (c *IdentityClient) SignInAnonymously(ctx context.Context) (*Session, error) {
	const op = "anonymous sign-in"

	body, err := json.Marshal(signUpRequest{ReturnSecureToken: true})
	if err != nil {
		return nil, fmt.Errorf("[IdentityClient] failed to marshal sign-up request: %w", err)
	}

	endpoint := c.toolkitURL + "/accounts:signUp?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &IdentityError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", USER_AGENT)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &IdentityError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &IdentityError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(op, resp.StatusCode, raw)
	}

	var out signUpResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("[IdentityClient] failed to decode sign-up response: %w", err)
	}
	if out.IDToken == "" || out.LocalID == "" {
		return nil, &IdentityError{Op: op, StatusCode: resp.StatusCode, Code: "MISSING_TOKEN"}
	}

	expiresIn, err := strconv.Atoi(out.ExpiresIn)
	if err != nil {
		expiresIn = 3600
	}

	tok := (&oauth2.Token{
		AccessToken:  out.IDToken,
		TokenType:    "Bearer",
		RefreshToken: out.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(expiresIn) * time.Second),
	}).WithExtra(map[string]interface{}{
		"user_id":  out.LocalID,
		"id_token": out.IDToken,
	})

	slog.Info("[IdentityClient] Signed in anonymously",
		slog.String("uid", out.LocalID),
		slog.Duration("elapsed", time.Since(start)))

	return c.newSession(ctx, out.LocalID, tok), nil
}

// Resume exchanges a stored refresh token for a fresh session of the same user.
func (c *IdentityClient) Resume(ctx context.Context, uid, refreshToken string) (*Session, error) {
	const op = "session refresh"

	// An empty access token forces the token source to refresh immediately.
	tok, err := c.oauthConfig().TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, apiError(op, re.Response.StatusCode, re.Body)
		}
		return nil, &IdentityError{Op: op, Err: err}
	}

	if id, ok := tok.Extra("user_id").(string); ok && id != "" {
		uid = id
	}

	slog.Info("[IdentityClient] Resumed anonymous session", slog.String("uid", uid))
	return c.newSession(ctx, uid, tok), nil
}

func (c *IdentityClient) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.secureTokenURL + "/token?key=" + url.QueryEscape(c.apiKey),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauthContext detaches from ctx cancellation so later refreshes outlive the
// call that created the session.
func (c *IdentityClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, c.client)
}

func (c *IdentityClient) newSession(ctx context.Context, uid string, tok *oauth2.Token) *Session {
	oauthCtx := c.oauthContext(ctx)
	return &Session{
		uid:          uid,
		refreshToken: tok.RefreshToken,
		source:       oauth2.ReuseTokenSource(tok, c.oauthConfig().TokenSource(oauthCtx, tok)),
	}
}

func apiError(op string, status int, raw []byte) *IdentityError {
	var body apiErrorBody
	code := http.StatusText(status)
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		code = body.Error.Message
	}
	return &IdentityError{Op: op, StatusCode: status, Code: code}
}
