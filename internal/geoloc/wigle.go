package geoloc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"wifitrk-ng/internal/geo"
)

// WiGLE error codes, returned negated as the accuracy sentinel.
const (
	wigleErrNotSuccess = 1
	wigleErrNoResults  = 2
	wigleErrBadRange   = 3
)

// wigleProvider queries the WiGLE network database for the strongest
// BSSID in the fingerprint. Unlike the JSON-POST backends it locates a
// single access point, so its accuracy is the AP's observed range.
type wigleProvider struct {
	url    string
	apiKey string // pre-encoded Basic credential
	client *http.Client
}

func newWigleProvider(url, apiKey string, client *http.Client) *wigleProvider {
	return &wigleProvider{url: url, apiKey: apiKey, client: client}
}

type wigleResponse struct {
	Success      bool `json:"success"`
	TotalResults int  `json:"totalResults"`
	Results      []struct {
		Trilat  float64 `json:"trilat"`
		Trilong float64 `json:"trilong"`
		Range   float64 `json:"range"`
	} `json:"results"`
}

func (p *wigleProvider) Resolve(ctx context.Context, fp geo.Fingerprint) (geo.Result, error) {
	fail := geo.Result{Accuracy: -1}
	if len(fp) == 0 {
		return fail, fmt.Errorf("geoloc: empty fingerprint")
	}

	best := 0
	for i := 1; i < len(fp); i++ {
		if fp[i].RSSI > fp[best].RSSI {
			best = i
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url+"?netid="+fp[best].MAC(), nil)
	if err != nil {
		return fail, fmt.Errorf("geoloc: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Basic "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fail, fmt.Errorf("geoloc: get: %w", err)
	}
	defer resp.Body.Close()

	var wr wigleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&wr); err != nil {
		return fail, fmt.Errorf("geoloc: decode response: %w", err)
	}
	if !wr.Success {
		fail.Accuracy = -wigleErrNotSuccess
		return fail, fmt.Errorf("geoloc: wigle query not successful (http %s)", resp.Status)
	}
	if wr.TotalResults < 1 || len(wr.Results) == 0 {
		fail.Accuracy = -wigleErrNoResults
		return fail, fmt.Errorf("geoloc: no results for %s", fp[best].MAC())
	}
	r := wr.Results[0]
	if r.Range < 0 {
		fail.Accuracy = -wigleErrBadRange
		return fail, fmt.Errorf("geoloc: negative range %v", r.Range)
	}

	return geo.Result{
		Valid:     true,
		Latitude:  r.Trilat,
		Longitude: r.Trilong,
		Accuracy:  int(r.Range + 0.5),
	}, nil
}
