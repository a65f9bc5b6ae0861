package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/osucollect/osucollect/internal"
)

const (
	tokenEndpoint   = "%s/oauth/token"
	beatmapEndpoint = "%s/api/v2/beatmaps/%d"

	// tokenExpiryMargin renews a token this long before the API would
	// reject it.
	tokenExpiryMargin = 30 * time.Second

	maxResponseSize = 1 << 20
)

// ErrMissingChecksum is returned when the API knows a beatmap but has no
// checksum for it.
var ErrMissingChecksum = errors.New("beatmap has no checksum")

// Beatmap is the part of a beatmap lookup that is needed to build a
// collection.
type Beatmap struct {
	ID           uint32
	BeatmapsetID uint32
	Checksum     string
}

type token struct {
	value     string
	expiresAt time.Time
}

// Lookup fetches the checksum and beatmapset of a beatmap. A token that the
// API rejects is renewed once before giving up.
func (c *Client) Lookup(ctx context.Context, beatmapID uint32) (Beatmap, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return Beatmap{}, err
	}

	beatmap, err := c.getBeatmap(ctx, tok, beatmapID)
	var httpErr internal.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
		c.dropToken(tok)
		tok, err = c.accessToken(ctx)
		if err != nil {
			return Beatmap{}, err
		}
		beatmap, err = c.getBeatmap(ctx, tok, beatmapID)
	}
	if err != nil {
		return Beatmap{}, fmt.Errorf("looking up beatmap %d: %w", beatmapID, err)
	}
	return beatmap, nil
}

// accessToken returns a cached token or fetches a new one. The mutex is
// held during the fetch so concurrent lookups share a single request.
func (c *Client) accessToken(ctx context.Context) (*token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && c.now().Before(c.token.expiresAt) {
		return c.token, nil
	}

	tok, err := c.fetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching access token: %w", err)
	}
	c.token = tok
	return tok, nil
}

func (c *Client) dropToken(tok *token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == tok {
		c.token = nil
	}
}

func (c *Client) fetchToken(ctx context.Context) (*token, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	form := url.Values{}
	form.Add("client_id", strconv.Itoa(c.clientID))
	form.Add("client_secret", c.clientSecret)
	form.Add("grant_type", "client_credentials")
	form.Add("scope", "public")

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.tokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent())

	var tokenResponse struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := c.doJSON(req, &tokenResponse); err != nil {
		return nil, err
	}
	if tokenResponse.AccessToken == "" {
		return nil, errors.New("token response does not contain an access token")
	}

	lifetime := time.Duration(tokenResponse.ExpiresIn)*time.Second - tokenExpiryMargin
	return &token{
		value:     tokenResponse.AccessToken,
		expiresAt: c.now().Add(lifetime),
	}, nil
}

func (c *Client) getBeatmap(ctx context.Context, tok *token, beatmapID uint32) (Beatmap, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Beatmap{}, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf(beatmapEndpoint, c.endpoint, beatmapID),
		nil,
	)
	if err != nil {
		return Beatmap{}, fmt.Errorf("creating beatmap request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.value)
	req.Header.Set("User-Agent", c.userAgent())

	var beatmapResponse struct {
		ID           uint32  `json:"id"`
		BeatmapsetID uint32  `json:"beatmapset_id"`
		Checksum     *string `json:"checksum"`
	}
	if err := c.doJSON(req, &beatmapResponse); err != nil {
		return Beatmap{}, err
	}
	if beatmapResponse.Checksum == nil || *beatmapResponse.Checksum == "" {
		return Beatmap{}, ErrMissingChecksum
	}

	return Beatmap{
		ID:           beatmapResponse.ID,
		BeatmapsetID: beatmapResponse.BeatmapsetID,
		Checksum:     *beatmapResponse.Checksum,
	}, nil
}

// doJSON performs req and decodes a 200 response into v. Any other status
// is returned as an internal.HTTPError.
func (c *Client) doJSON(req *http.Request, v any) error {
	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		//nolint:errcheck // we are already returning an error.
		buf, _ := io.ReadAll(io.LimitReader(response.Body, 256))
		httpErr := internal.HTTPError{
			Body:       string(buf),
			StatusCode: response.StatusCode,
		}
		return fmt.Errorf("unexpected HTTP status code: %w", httpErr)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing response body: %w", err)
	}
	return nil
}
