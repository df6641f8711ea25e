package geoloc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"wifitrk-ng/internal/geo"
)

// jsonProvider speaks the Mozilla Location Services request format,
// which the Google Geolocation API shares. Only the endpoint differs.
type jsonProvider struct {
	url    string
	apiKey string
	client *http.Client
}

func newJSONProvider(url, apiKey string, client *http.Client) *jsonProvider {
	return &jsonProvider{url: url, apiKey: apiKey, client: client}
}

type wifiAccessPoint struct {
	MACAddress         string `json:"macAddress"`
	SignalStrength     int    `json:"signalStrength"`
	Age                int    `json:"age"`
	Channel            int    `json:"channel"`
	SignalToNoiseRatio int    `json:"signalToNoiseRatio"`
}

type geolocateRequest struct {
	ConsiderIP       bool              `json:"considerIp"`
	WifiAccessPoints []wifiAccessPoint `json:"wifiAccessPoints"`
}

type geolocateResponse struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Resolve POSTs the fingerprint and reads lat/lng/accuracy from the
// reply. Any transport or decode failure yields the accuracy=-1
// sentinel; an API error yields its code negated.
func (p *jsonProvider) Resolve(ctx context.Context, fp geo.Fingerprint) (geo.Result, error) {
	fail := geo.Result{Accuracy: -1}

	req := geolocateRequest{WifiAccessPoints: make([]wifiAccessPoint, 0, len(fp))}
	for _, n := range fp {
		req.WifiAccessPoints = append(req.WifiAccessPoints, wifiAccessPoint{
			MACAddress:     n.MAC(),
			SignalStrength: n.RSSI,
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fail, fmt.Errorf("geoloc: encode request: %w", err)
	}

	url := p.url
	if p.apiKey != "" {
		url += "?key=" + p.apiKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fail, fmt.Errorf("geoloc: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fail, fmt.Errorf("geoloc: post: %w", err)
	}
	defer resp.Body.Close()

	var gr geolocateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&gr); err != nil {
		return fail, fmt.Errorf("geoloc: decode response: %w", err)
	}
	if gr.Error != nil {
		fail.Accuracy = -gr.Error.Code
		return fail, fmt.Errorf("geoloc: api error %d: %s", gr.Error.Code, gr.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fail, fmt.Errorf("geoloc: http status %s", resp.Status)
	}
	if gr.Accuracy <= 0 {
		return fail, fmt.Errorf("geoloc: response carries no accuracy")
	}

	return geo.Result{
		Valid:     true,
		Latitude:  gr.Location.Lat,
		Longitude: gr.Location.Lng,
		Accuracy:  int(gr.Accuracy + 0.5),
	}, nil
}
