// Package scraper fetches raw posts for a handle from the Apify
// instagram-scraper actor. The pipeline itself only ever sees the
// already-fetched batch.
package scraper

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

	"github.com/vitrina-app/vitrina/internal/models"
)

const (
	defaultBaseURL = "https://api.apify.com"
	defaultActorID = "apify~instagram-scraper"
)

// Client talks to the Apify actor run API.
type Client struct {
	token      string
	actorID    string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client with the given API token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		actorID: defaultActorID,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			// Actor runs block until the scrape finishes.
			Timeout: 5 * time.Minute,
		},
	}
}

// Configured reports whether an API token is present.
func (c *Client) Configured() bool {
	return c.token != ""
}

type actorInput struct {
	AddParentData bool     `json:"addParentData"`
	DirectURLs    []string `json:"directUrls"`
	ResultsLimit  int      `json:"resultsLimit"`
	ResultsType   string   `json:"resultsType"`
	SearchLimit   int      `json:"searchLimit"`
	SearchType    string   `json:"searchType"`
}

// FetchPosts runs the actor synchronously for the handle's profile and
// returns the scraped posts.
func (c *Client) FetchPosts(ctx context.Context, handle string, limit int) ([]models.RawPost, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("apify client misconfigured: missing API token")
	}

	input := actorInput{
		DirectURLs:   []string{"https://www.instagram.com/" + handle},
		ResultsLimit: limit,
		ResultsType:  "posts",
		SearchLimit:  1,
		SearchType:   "user",
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, c.actorID, url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run actor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("apify error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var posts []models.RawPost
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("decode dataset items: %w", err)
	}
	return posts, nil
}
