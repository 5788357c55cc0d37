// Package gcp adapts held credentials for Google API clients. Nothing
// here performs network authentication; callers get an oauth2 config and
// exchange tokens themselves.
package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"

	"github.com/credkeep/cli/internal/creds"
)

// ErrNoCredentials is returned when the manager holds no record.
var ErrNoCredentials = errors.New("no credentials loaded")

// JWTConfig builds a two-legged JWT config from the manager's held
// record, scoped as requested.
func JWTConfig(m *creds.Manager, scopes ...string) (*jwt.Config, error) {
	data, err := recordJSON(m)
	if err != nil {
		return nil, err
	}
	cfg, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("build JWT config: %w", err)
	}
	return cfg, nil
}

// Credentials wraps the held record as google.Credentials, the form most
// cloud SDK clients accept directly.
func Credentials(ctx context.Context, m *creds.Manager, scopes ...string) (*google.Credentials, error) {
	data, err := recordJSON(m)
	if err != nil {
		return nil, err
	}
	gc, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("build credentials: %w", err)
	}
	return gc, nil
}

func recordJSON(m *creds.Manager) ([]byte, error) {
	rec := m.Get()
	if rec == nil {
		return nil, ErrNoCredentials
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	return data, nil
}
