package locate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/hazard-aggregator/internal/cache/ttlcache"
	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

func newDetector(t *testing.T, h http.HandlerFunc) *Detector {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	f := fetch.New(fetch.Options{Cache: ttlcache.New(ttlcache.Options{Layer: "fetch"}), Timeout: time.Second})
	return New(srv.URL+"/json/", f, time.Second, nil)
}

func TestDetect_Success(t *testing.T) {
	var gotPath string
	d := newDetector(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"success","lat":28.61,"lon":77.23,"city":"New Delhi","regionName":"","country":"India","query":"203.0.113.7"}`))
	})

	loc := d.Detect(context.Background(), "203.0.113.7")
	require.NotNil(t, loc)
	assert.Equal(t, "/json/203.0.113.7", gotPath)
	assert.Equal(t, 28.61, loc.Lat)
	assert.Equal(t, 77.23, loc.Lon)
	assert.Equal(t, "New Delhi, India", loc.DisplayName)
}

func TestDetect_DisplayNameFallsBackToQuery(t *testing.T) {
	d := newDetector(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","lat":1,"lon":2,"query":"198.51.100.1"}`))
	})
	loc := d.Detect(context.Background(), "198.51.100.1")
	require.NotNil(t, loc)
	assert.Equal(t, "198.51.100.1", loc.DisplayName)
}

func TestDetect_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"fail status": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
		},
		"missing coords": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"success"}`))
		},
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		"garbage": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			d := newDetector(t, h)
			assert.Nil(t, d.Detect(context.Background(), "203.0.113.9"))
		})
	}
}

func TestURL_LocalAddressesLetServiceDetect(t *testing.T) {
	d := New("http://ip-api.example/json", nil, 0, nil)
	for _, ip := range []string{"127.0.0.1", "::1", "10.1.2.3", "", "not-an-ip"} {
		assert.Equal(t, "http://ip-api.example/json", d.URL(ip), ip)
	}
	assert.Equal(t, "http://ip-api.example/json/8.8.8.8", d.URL("8.8.8.8"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/location", nil)
	r.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", ClientIP(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.5 , 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(r))
}
