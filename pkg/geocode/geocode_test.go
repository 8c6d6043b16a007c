package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestReverse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("User-Agent = %s", ua)
		}
		if r.URL.Query().Get("lat") != "12.9698" || r.URL.Query().Get("lon") != "77.75" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"display_name":"Whitefield, Bengaluru","address":{"town":"Whitefield","village":"Hope Farm"}}`))
	}))
	defer srv.Close()

	cli := NewClient(Config{URL: srv.URL})
	for range 2 {
		p, err := cli.Reverse(context.Background(), 12.9698, 77.75)
		if err != nil {
			t.Fatal(err)
		}
		if p.Address != "Whitefield, Bengaluru" || p.City != "Whitefield" {
			t.Fatalf("place = %+v", p)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expect cached result, calls = %d", calls.Load())
	}
}

func TestReverseCityFallback(t *testing.T) {
	cases := []struct {
		body string
		city string
		addr string
	}{
		{`{"display_name":"A","address":{"city":"Bengaluru","town":"T"}}`, "Bengaluru", "A"},
		{`{"display_name":"B","address":{"village":"V"}}`, "V", "B"},
		{`{"address":{}}`, Unknown, Unknown},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(tc.body))
		}))
		p, err := NewClient(Config{URL: srv.URL}).Reverse(context.Background(), 1, 2)
		srv.Close()
		if err != nil {
			t.Fatal(err)
		}
		if p.City != tc.city || p.Address != tc.addr {
			t.Fatalf("body %s: place = %+v", tc.body, p)
		}
	}
}

func TestReverseNon200(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cli := NewClient(Config{URL: srv.URL})
	for range 2 {
		p, err := cli.Reverse(context.Background(), 1, 2)
		if err != nil {
			t.Fatal(err)
		}
		if p != UnknownPlace() {
			t.Fatalf("place = %+v", p)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("unknown result should not be cached, calls = %d", calls.Load())
	}
}

func TestReverseUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if _, err := NewClient(Config{URL: srv.URL}).Reverse(context.Background(), 1, 2); err == nil {
		t.Fatal("expect transport error")
	}
}
