package net

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/oauth2"
)

// GetHTTPClient returns a client with a cookie jar and the shared transport.
func GetHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("error creating cookie jar: %w", err)
	}

	return &http.Client{
		Jar:       jar,
		Timeout:   time.Duration(timeoutInSeconds) * time.Second,
		Transport: reqTransport,
	}, nil
}

// GetOAuthClient returns a client authenticating with token, or a plain
// client when token is empty.
func GetOAuthClient(ctx context.Context, token string) *http.Client {
	if token == "" {
		return &http.Client{
			Timeout:   time.Duration(timeoutInSeconds) * time.Second,
			Transport: reqTransport,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{
			TokenType:   "token",
			AccessToken: token,
		},
	)
	tc := oauth2.NewClient(ctx, ts)

	return tc
}
