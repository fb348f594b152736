package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientConfig configures the provider admin API client.
type ClientConfig struct {
	// BaseURL is the provider admin API root, e.g. https://idp.internal.
	BaseURL string
	// TokenURL is the OAuth2 token endpoint for the client-credentials
	// grant. Leaving ClientID empty disables auth (local development
	// against a stub provider).
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client talks to the identity provider's admin API. It implements the
// provider interface the user service consumes.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

// NewClient creates an admin API client. With client credentials
// configured, every request carries a token from the client-credentials
// grant; the oauth2 transport caches and refreshes it.
func NewClient(cfg ClientConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	var httpClient *http.Client
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = timeout
	} else {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     logger,
	}
}

type createUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type createUserResponse struct {
	ID string `json:"id"`
}

// CreateUser provisions an identity without a password; the owner sets one
// through the invitation link. Returns the provider-side id.
func (c *Client) CreateUser(ctx context.Context, email, firstName, lastName string) (string, error) {
	var resp createUserResponse
	err := c.do(ctx, http.MethodPost, "/admin/api/users", createUserRequest{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
	}, &resp)
	if err != nil {
		return "", err
	}

	c.logger.WithFields(logrus.Fields{
		"component":   "identity_client",
		"external_id": resp.ID,
	}).Info("identity provisioned")
	return resp.ID, nil
}

// RequestPasswordReset asks the provider to issue a reset link. The
// provider calls the reset-dispatch hook back with the link; delivery is
// decided there.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/admin/api/password-reset-requests",
		map[string]string{"email": email}, nil)
}

// ChangePassword verifies the current password with the provider and sets
// the new one.
func (c *Client) ChangePassword(ctx context.Context, externalID, currentPassword, newPassword string) error {
	path := fmt.Sprintf("/admin/api/users/%s/password", url.PathEscape(externalID))
	return c.do(ctx, http.MethodPost, path, map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	}, nil)
}

// RevokeSessions terminates every live session of the identity.
func (c *Client) RevokeSessions(ctx context.Context, externalID string) error {
	path := fmt.Sprintf("/admin/api/users/%s/sessions", url.PathEscape(externalID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"component":   "identity_client",
		"external_id": externalID,
	}).Info("sessions revoked")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusConflict:
		return ErrIdentityExists
	case resp.StatusCode == http.StatusForbidden:
		return ErrWrongPassword
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}
