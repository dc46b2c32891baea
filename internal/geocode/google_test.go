package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testClient(serverURL string) *Client {
	return &Client{
		apiKey:     "test-key",
		baseURL:    serverURL,
		httpClient: &http.Client{Timeout: time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

const okResponse = `{
	"status": "OK",
	"results": [{
		"formatted_address": "1 Main St, Austin, TX 78701, USA",
		"geometry": {"location": {"lat": 30.2672, "lng": -97.7431}},
		"address_components": [
			{"long_name": "Austin", "short_name": "Austin", "types": ["locality"]},
			{"long_name": "Travis County", "short_name": "Travis", "types": ["administrative_area_level_2"]},
			{"long_name": "Texas", "short_name": "TX", "types": ["administrative_area_level_1"]},
			{"long_name": "78701", "short_name": "78701", "types": ["postal_code"]}
		]
	}]
}`

func TestGeocode(t *testing.T) {
	var gotAddress string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Geocode(context.Background(), "1 Main St, Austin, TX")
	if err != nil {
		t.Fatal(err)
	}

	if gotAddress != "1 Main St, Austin, TX" {
		t.Errorf("request address = %q", gotAddress)
	}
	if result.Lat != 30.2672 || result.Lng != -97.7431 {
		t.Errorf("lat/lng = %v/%v", result.Lat, result.Lng)
	}
	if result.State != "TX" {
		t.Errorf("state = %q, want TX", result.State)
	}
	if result.County != "Travis County" {
		t.Errorf("county = %q", result.County)
	}
	if result.Zip != "78701" {
		t.Errorf("zip = %q", result.Zip)
	}
}

func TestGeocode_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Geocode(context.Background(), "nowhere"); err == nil {
		t.Fatal("expected error for ZERO_RESULTS")
	}
}

func TestGeocode_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Geocode(context.Background(), "anywhere"); err == nil {
		t.Fatal("expected error for HTTP 403")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	client, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}
	if client != nil {
		t.Fatal("expected nil client without API key")
	}
}
