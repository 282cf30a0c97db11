// Package mercadopago is a minimal client for the parts of the Mercado Pago
// REST API this system uses: the seller OAuth flow and checkout preference
// creation. Preferences are created with the seller's own access token
// (marketplace pattern), never a platform-wide one.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIBaseURL  = "https://api.mercadopago.com"
	defaultAuthBaseURL = "https://auth.mercadopago.com"
)

// Config wires the application credentials and redirect targets.
type Config struct {
	AppID        string
	ClientSecret string
	RedirectURI  string

	// Fixed redirect targets for completed checkouts.
	SuccessURL string
	FailureURL string
	PendingURL string

	// Overridable in tests.
	APIBaseURL  string
	AuthBaseURL string
}

// Client talks to the Mercado Pago REST API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient builds a client from configuration.
func NewClient(config Config) *Client {
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.AuthBaseURL == "" {
		config.AuthBaseURL = defaultAuthBaseURL
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// Configured reports whether the application credentials are present.
func (c *Client) Configured() bool {
	return c.config.AppID != "" && c.config.ClientSecret != "" && c.config.RedirectURI != ""
}

// AuthorizationURL builds the OAuth URL a seller visits to connect their
// account. The handle rides in the state parameter so the callback knows
// which seller returned.
func (c *Client) AuthorizationURL(handle string) string {
	return fmt.Sprintf("%s/authorization?client_id=%s&response_type=code&platform_id=mp&state=%s&redirect_uri=%s",
		c.config.AuthBaseURL, c.config.AppID, url.QueryEscape(handle), url.QueryEscape(c.config.RedirectURI))
}

// Credentials is the result of an OAuth code exchange.
type Credentials struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       int64  `json:"user_id"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExchangeCode trades an OAuth authorization code for seller credentials.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Credentials, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("mercadopago client misconfigured")
	}

	body, err := json.Marshal(map[string]string{
		"client_secret": c.config.ClientSecret,
		"client_id":     c.config.AppID,
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  c.config.RedirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("oauth token error %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	return &Credentials{
		UserID:       strconv.FormatInt(token.UserID, 10),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
	}, nil
}

// PreferenceRequest describes the single line item of a checkout preference.
type PreferenceRequest struct {
	ItemID         string
	Title          string
	UnitPrice      float64
	CurrencyID     string
	PictureURL     string
	MarketplaceFee float64
}

type preferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
	PictureURL string  `json:"picture_url,omitempty"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type preferencePayload struct {
	Items          []preferenceItem   `json:"items"`
	BackURLs       preferenceBackURLs `json:"back_urls"`
	AutoReturn     string             `json:"auto_return"`
	MarketplaceFee float64            `json:"marketplace_fee"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference creates a checkout preference using the seller's access
// token and returns the checkout URL.
func (c *Client) CreatePreference(ctx context.Context, accessToken string, pref PreferenceRequest) (string, error) {
	if accessToken == "" {
		return "", fmt.Errorf("access token is required to create a preference")
	}

	payload := preferencePayload{
		Items: []preferenceItem{{
			ID:         pref.ItemID,
			Title:      pref.Title,
			UnitPrice:  pref.UnitPrice,
			Quantity:   1,
			PictureURL: pref.PictureURL,
			CurrencyID: pref.CurrencyID,
		}},
		BackURLs: preferenceBackURLs{
			Success: c.config.SuccessURL,
			Failure: c.config.FailureURL,
			Pending: c.config.PendingURL,
		},
		AutoReturn:     "approved",
		MarketplaceFee: pref.MarketplaceFee,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal preference: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create preference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("preference error %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	var created preferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode preference response: %w", err)
	}
	if created.InitPoint == "" {
		return "", fmt.Errorf("preference response missing init_point")
	}
	return created.InitPoint, nil
}

func readErrorBody(r io.Reader) string {
	payload, _ := io.ReadAll(io.LimitReader(r, 1024))
	return strings.TrimSpace(string(payload))
}
