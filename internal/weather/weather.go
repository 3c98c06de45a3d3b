package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fleetroute/internal/model"
)

// Provider supplies current weather for a location. Implementations must be
// safe for concurrent use.
type Provider interface {
	Current(ctx context.Context, loc model.GeoPoint) (model.Weather, error)
}

// Default returns the fallback record used when no provider is configured or
// a lookup fails: mild, clear conditions that leave route costs unchanged.
func Default() model.Weather {
	return model.Weather{
		Condition:        "clear",
		TemperatureC:     22,
		PrecipitationMmH: 0,
		WindSpeedKmh:     10,
		HumidityPct:      60,
		VisibilityKm:     10,
		Timestamp:        time.Now().UTC(),
	}
}

// HTTPProvider fetches weather from a JSON endpoint that accepts lat/lng
// query parameters and responds with the wire format of model.Weather.
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *HTTPProvider) Current(ctx context.Context, loc model.GeoPoint) (model.Weather, error) {
	url := fmt.Sprintf("%s?lat=%f&lng=%f", p.BaseURL, loc.Lat, loc.Lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Weather{}, err
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return model.Weather{}, fmt.Errorf("weather fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Weather{}, fmt.Errorf("weather fetch: status %d", resp.StatusCode)
	}
	var w model.Weather
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return model.Weather{}, fmt.Errorf("weather decode: %w", err)
	}
	if w.Timestamp.IsZero() {
		w.Timestamp = time.Now().UTC()
	}
	return w, nil
}

// CurrentOrDefault resolves weather through prov, falling back to Default on
// a nil provider or any lookup error.
func CurrentOrDefault(ctx context.Context, prov Provider, loc model.GeoPoint) model.Weather {
	if prov == nil {
		return Default()
	}
	w, err := prov.Current(ctx, loc)
	if err != nil {
		return Default()
	}
	return w
}
