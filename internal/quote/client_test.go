package quote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snapbet/decision-engine/internal/model"
	"github.com/snapbet/decision-engine/internal/quote"
)

func testClient(url string) *quote.Client {
	return quote.NewClient(url, quote.Options{
		Timeout:         time.Second,
		RequestsPerSec:  100,
		MaxRetryElapsed: 100 * time.Millisecond,
	})
}

func TestFetch_FoundMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/KXFIGHT-GARCIA":
			w.Write([]byte(`{"market":{"status":"active","yes_bid":58,"yes_ask":60,"no_bid":40,"no_ask":42,"last_price":59,"previous_price":55,"volume":1200,"volume_24h":300,"open_interest":900}}`))
		case "/markets/KXFIGHT-GARCIA/orderbook":
			w.Write([]byte(`{"orderbook":{"yes":[[58,100],[57,50]],"no":[[40,80]]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	q := testClient(srv.URL).Fetch(context.Background(), "KXFIGHT-GARCIA")

	if q.Status != model.QuoteFound {
		t.Fatalf("status = %s, want found", q.Status)
	}
	if q.YesAsk == nil || *q.YesAsk != 60 {
		t.Errorf("yes_ask = %v, want 60", q.YesAsk)
	}
	if q.Spread == nil || *q.Spread != 2 {
		t.Errorf("spread = %v, want 2", q.Spread)
	}
	if q.Midpoint == nil || *q.Midpoint != 59 {
		t.Errorf("midpoint = %v, want 59", q.Midpoint)
	}
	if q.PriceDelta == nil || *q.PriceDelta != 4 {
		t.Errorf("price_delta = %v, want 4", q.PriceDelta)
	}
	if q.YesDepth == nil || *q.YesDepth != 150 {
		t.Errorf("yes_depth = %v, want 150", q.YesDepth)
	}
	if q.NoDepth == nil || *q.NoDepth != 80 {
		t.Errorf("no_depth = %v, want 80", q.NoDepth)
	}
}

func TestFetch_SettledMarketCarriesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/markets/KXFIGHT-GARCIA" {
			w.Write([]byte(`{"market":{"status":"settled","result":"yes","last_price":100}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	q := testClient(srv.URL).Fetch(context.Background(), "KXFIGHT-GARCIA")
	if q.Result != model.SideYes {
		t.Errorf("result = %q, want yes", q.Result)
	}
	if q.MarketStatus != "settled" {
		t.Errorf("market_status = %q, want settled", q.MarketStatus)
	}
}

func TestFetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	q := testClient(srv.URL).Fetch(context.Background(), "NOPE")
	if q.Status != model.QuoteNotFound {
		t.Errorf("status = %s, want not_found", q.Status)
	}
}

func TestFetch_EmptyTickerSkipsNetwork(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = true
	}))
	defer srv.Close()

	q := testClient(srv.URL).Fetch(context.Background(), "")
	if q.Status != model.QuoteNotFound || q.Reason != "no_ticker" {
		t.Errorf("got %+v, want not_found/no_ticker", q)
	}
	if hit {
		t.Error("empty ticker should not reach the API")
	}
}

func TestFetch_ServerErrorDegradesToErrorQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := testClient(srv.URL).Fetch(context.Background(), "KXFIGHT-GARCIA")
	if q.Status != model.QuoteError {
		t.Errorf("status = %s, want error", q.Status)
	}
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/KXFIGHT-GARCIA" {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) == 1 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"market":{"status":"active","yes_ask":60}}`))
	}))
	defer srv.Close()

	q := testClient(srv.URL).Fetch(context.Background(), "KXFIGHT-GARCIA")
	if q.Status != model.QuoteFound {
		t.Fatalf("status = %s, want found after retry", q.Status)
	}
	if calls.Load() < 2 {
		t.Errorf("market endpoint calls = %d, want a retry", calls.Load())
	}
}
