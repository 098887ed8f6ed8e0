// Package metadata looks up a linked property's approximate location from
// the photo bucket's object metadata.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/paulmach/orb"
	"github.com/tidwall/gjson"

	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/utils"
)

// ErrNotFound is returned for every failed lookup: transport errors, non-200
// responses and payloads without a usable location.
var ErrNotFound = errors.New("property not found")

// DefaultEndpoint lists the objects of the public property photo bucket.
const DefaultEndpoint = "https://storage.googleapis.com/storage/v1/b/cleanandgreenphl/o"

// Locator resolves a property identifier to a location.
type Locator interface {
	Lookup(ctx context.Context, opaID string) (orb.Point, error)
}

// Client queries the object metadata endpoint.
type Client struct {
	endpoint string
	http     *retryablehttp.Client
}

var _ Locator = (*Client)(nil)

// NewClient returns a client for endpoint, e.g. DefaultEndpoint.
func NewClient(endpoint string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	return &Client{endpoint: strings.TrimSuffix(endpoint, "/"), http: rc}
}

// URL returns the metadata URL for opaID.
func (c *Client) URL(opaID string) string {
	return c.endpoint + "/" + url.PathEscape(opaID+".jpg")
}

// Lookup fetches the metadata object for opaID and parses its
// metadata.location field.
func (c *Client) Lookup(ctx context.Context, opaID string) (orb.Point, error) {
	if !property.ValidOPAID(opaID) {
		return orb.Point{}, ErrNotFound
	}
	pt, err := c.lookup(ctx, opaID)
	if err != nil {
		utils.Log.WithField("opa_id", opaID).Debugf("metadata lookup: %v", err)
		return orb.Point{}, ErrNotFound
	}
	return pt, nil
}

func (c *Client) lookup(ctx context.Context, opaID string) (orb.Point, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.URL(opaID), nil)
	if err != nil {
		return orb.Point{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return orb.Point{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orb.Point{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return orb.Point{}, err
	}
	if !gjson.ValidBytes(body) {
		return orb.Point{}, fmt.Errorf("%w: payload is not JSON", errMalformed)
	}

	loc := gjson.GetBytes(body, "metadata.location")
	switch {
	case !loc.Exists():
		return orb.Point{}, fmt.Errorf("%w: no metadata.location", errMalformed)
	case loc.IsObject():
		return pointFrom(loc)
	case loc.Type == gjson.String:
		return ParseLocation(loc.Str)
	}
	return orb.Point{}, fmt.Errorf("%w: location is %s", errMalformed, loc.Type)
}
