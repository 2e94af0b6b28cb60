package enrich

import (
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

const defaultGeocodeRequestTimeout = 15 * time.Second

// HTTPGeocoder calls a Nominatim-compatible forward geocoding endpoint:
// GET <endpoint>?q=<query>&format=json&limit=1.
type HTTPGeocoder struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

type geocodeResponseItem struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func NewHTTPGeocoder(endpoint string) *HTTPGeocoder {
	return &HTTPGeocoder{
		endpoint: strings.TrimSpace(endpoint),
		timeout:  defaultGeocodeRequestTimeout,
		client:   http.DefaultClient,
	}
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, query string) (float64, float64, bool, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return 0, 0, false, nil
	}

	requestURL, err := url.Parse(g.endpoint)
	if err != nil {
		return 0, 0, false, fmt.Errorf("parse geocode endpoint: %w", err)
	}
	params := requestURL.Query()
	params.Set("q", trimmed)
	params.Set("format", "json")
	params.Set("limit", "1")
	requestURL.RawQuery = params.Encode()

	requestCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return 0, 0, false, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, false, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, false, fmt.Errorf("read geocode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, 0, false, fmt.Errorf("geocode service status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var items []geocodeResponseItem
	if err := json.Unmarshal(body, &items); err != nil {
		return 0, 0, false, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(items) == 0 {
		return 0, 0, false, nil
	}

	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("parse geocode latitude %q: %w", items[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("parse geocode longitude %q: %w", items[0].Lon, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false, fmt.Errorf("geocode result out of range: lat=%v lon=%v", lat, lon)
	}
	return lat, lon, true, nil
}
