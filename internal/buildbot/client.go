// Package buildbot reads build records from the host's REST data API.
package buildbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/neox5/bbexporter/internal/translate"
)

// DefaultTimeout bounds a single build lookup.
const DefaultTimeout = 5 * time.Second

// ErrBuildNotFound is returned when the API has no record of a build.
var ErrBuildNotFound = errors.New("build not found")

// Client implements translate.BuildFetcher against /api/v2.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL, e.g. http://localhost:8010/api/v2.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("buildbot api url cannot be empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type buildsResponse struct {
	Builds []struct {
		BuildID   int64  `json:"buildid"`
		BuilderID int64  `json:"builderid"`
		WorkerID  *int64 `json:"workerid"`
	} `json:"builds"`
}

// FetchBuild returns the builder and worker of a build.
func (c *Client) FetchBuild(ctx context.Context, buildID int64) (translate.BuildInfo, error) {
	url := c.baseURL + "/builds/" + strconv.FormatInt(buildID, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return translate.BuildInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return translate.BuildInfo{}, fmt.Errorf("failed to fetch build %d: %w", buildID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return translate.BuildInfo{}, fmt.Errorf("%w: %d", ErrBuildNotFound, buildID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return translate.BuildInfo{}, fmt.Errorf("failed to fetch build %d: status %d: %s",
			buildID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var br buildsResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return translate.BuildInfo{}, fmt.Errorf("failed to decode build %d: %w", buildID, err)
	}
	if len(br.Builds) == 0 {
		return translate.BuildInfo{}, fmt.Errorf("%w: %d", ErrBuildNotFound, buildID)
	}

	b := br.Builds[0]
	if b.WorkerID == nil {
		return translate.BuildInfo{}, fmt.Errorf("build %d has no worker", buildID)
	}
	return translate.BuildInfo{BuilderID: b.BuilderID, WorkerID: *b.WorkerID}, nil
}
