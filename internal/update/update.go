// Package update checks GitHub for a newer pswine release.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	goversion "github.com/hashicorp/go-version"

	"github.com/blackwell-systems/pswine/internal/logging"
)

// Release is the subset of the GitHub release payload pswine reads.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Notice describes an available upgrade.
type Notice struct {
	Current string
	Latest  string
	URL     string
}

func (n *Notice) String() string {
	return fmt.Sprintf("pswine %s is available (you have %s): %s", n.Latest, n.Current, n.URL)
}

// Checker compares the running version with the latest release.
type Checker struct {
	url     string
	current string
	client  *http.Client
}

// NewChecker returns a Checker querying url. The request, including one
// retry, is bounded by timeout.
func NewChecker(url, current string, timeout time.Duration) *Checker {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil

	client := rc.StandardClient()
	client.Timeout = timeout

	return &Checker{url: url, current: current, client: client}
}

// Latest fetches the newest release.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "pswine/"+c.current)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("release check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release check failed: %s", resp.Status)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}
	return &rel, nil
}

// Check returns a Notice when the latest release is newer than the
// running version, and nil otherwise. Development builds never get a
// notice.
func (c *Checker) Check(ctx context.Context) (*Notice, error) {
	current, err := goversion.NewVersion(strings.TrimPrefix(c.current, "v"))
	if err != nil {
		return nil, nil
	}

	rel, err := c.Latest(ctx)
	if err != nil {
		return nil, err
	}

	latest, err := goversion.NewVersion(strings.TrimPrefix(rel.TagName, "v"))
	if err != nil {
		return nil, fmt.Errorf("unparseable release tag %q: %w", rel.TagName, err)
	}

	if !latest.GreaterThan(current) {
		return nil, nil
	}
	return &Notice{Current: c.current, Latest: rel.TagName, URL: rel.HTMLURL}, nil
}

// Background runs Check in a goroutine. The channel receives at most one
// notice and is then closed; errors are logged at debug level only.
func Background(ctx context.Context, c *Checker) <-chan *Notice {
	out := make(chan *Notice, 1)
	go func() {
		defer close(out)
		notice, err := c.Check(ctx)
		if err != nil {
			logger := logging.Get("update")
			logger.Debug().Err(err).Msg("update check failed")
			return
		}
		if notice != nil {
			out <- notice
		}
	}()
	return out
}
