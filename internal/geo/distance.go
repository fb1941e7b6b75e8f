package geo

import (
    "context"
    "encoding/json"
    "fmt"
    "math"
    "net/http"
    "os"
    "time"
)

// roadFactor pads straight-line distance to approximate road distance
// when the routing provider is unavailable.
const roadFactor = 1.25

// Provider resolves road distance and duration between two points.
type Provider interface {
    Distance(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (km float64, duration time.Duration, err error)
}

// OSRMProvider calls an OSRM-compatible routing endpoint. Provider
// failure is non-fatal for callers: use Resolve for the fallback path.
type OSRMProvider struct {
    BaseURL string
    HTTP    *http.Client
}

func NewOSRMProviderFromEnv() *OSRMProvider {
    base := os.Getenv("ROUTING_URL")
    if base == "" {
        return nil
    }
    return &OSRMProvider{BaseURL: base, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (p *OSRMProvider) Distance(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (float64, time.Duration, error) {
    url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false", p.BaseURL, fromLng, fromLat, toLng, toLat)
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil {
        return 0, 0, err
    }
    resp, err := p.HTTP.Do(req)
    if err != nil {
        return 0, 0, err
    }
    defer func() { _ = resp.Body.Close() }()
    if resp.StatusCode != http.StatusOK {
        return 0, 0, fmt.Errorf("routing provider status %d", resp.StatusCode)
    }
    var body struct {
        Routes []struct {
            Distance float64 `json:"distance"` // meters
            Duration float64 `json:"duration"` // seconds
        } `json:"routes"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
        return 0, 0, err
    }
    if len(body.Routes) == 0 {
        return 0, 0, fmt.Errorf("routing provider returned no routes")
    }
    r := body.Routes[0]
    return r.Distance / 1000, time.Duration(r.Duration * float64(time.Second)), nil
}

// Resolve returns road distance in km, falling back to haversine times
// the road factor when the provider is nil or fails.
func Resolve(ctx context.Context, p Provider, fromLat, fromLng, toLat, toLng float64) float64 {
    if p != nil {
        if km, _, err := p.Distance(ctx, fromLat, fromLng, toLat, toLng); err == nil {
            return km
        }
    }
    return HaversineKm(fromLat, fromLng, toLat, toLng) * roadFactor
}

// HaversineKm is the great-circle distance between two coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
    const R = 6371.0
    dLat := (lat2 - lat1) * math.Pi / 180
    dLon := (lon2 - lon1) * math.Pi / 180
    a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
    c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
    return R * c
}
