// Package quote fetches live market snapshots from a Kalshi-style public
// API and normalizes them into model.MarketQuote. Fetch never hard-fails:
// a missing market yields a not_found quote and a broken upstream yields an
// error quote, so sizing can degrade instead of aborting.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/snapbet/decision-engine/internal/model"
)

// Client is a rate-limited, retrying market-data client.
type Client struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	maxWait time.Duration
}

// Options configures a Client. Zero values pick sane defaults.
type Options struct {
	Timeout         time.Duration // per-request timeout
	RequestsPerSec  int           // rate limit toward the market API
	MaxRetryElapsed time.Duration // total backoff budget for transient errors
}

// NewClient creates a market-data client for the given API base URL.
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxRetryElapsed == 0 {
		opts.MaxRetryElapsed = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), opts.RequestsPerSec),
		maxWait: opts.MaxRetryElapsed,
	}
}

// marketPayload mirrors the upstream market object. All prices are integer
// cents.
type marketPayload struct {
	Status        string `json:"status"`
	Result        string `json:"result"`
	YesBid        *int   `json:"yes_bid"`
	YesAsk        *int   `json:"yes_ask"`
	NoBid         *int   `json:"no_bid"`
	NoAsk         *int   `json:"no_ask"`
	LastPrice     *int   `json:"last_price"`
	PreviousPrice *int   `json:"previous_price"`
	Volume        *int   `json:"volume"`
	Volume24h     *int   `json:"volume_24h"`
	OpenInterest  *int   `json:"open_interest"`
}

type orderbookPayload struct {
	Yes [][2]int `json:"yes"`
	No  [][2]int `json:"no"`
}

// Fetch returns a point-in-time snapshot for ticker. An empty or unknown
// ticker resolves to a not_found quote without touching the network.
func (c *Client) Fetch(ctx context.Context, ticker string) *model.MarketQuote {
	if ticker == "" || ticker == "UNKNOWN" {
		return &model.MarketQuote{Status: model.QuoteNotFound, Reason: "no_ticker"}
	}

	market, found, err := c.fetchMarket(ctx, ticker)
	if err != nil {
		slog.Error("market fetch failed", "ticker", ticker, "err", err)
		return &model.MarketQuote{Status: model.QuoteError, Ticker: ticker}
	}
	if !found {
		return &model.MarketQuote{Status: model.QuoteNotFound, Ticker: ticker}
	}

	q := &model.MarketQuote{
		Status:       model.QuoteFound,
		Ticker:       ticker,
		MarketStatus: market.Status,
		YesBid:       market.YesBid,
		YesAsk:       market.YesAsk,
		NoBid:        market.NoBid,
		NoAsk:        market.NoAsk,
		LastPrice:    market.LastPrice,
		Volume:       market.Volume,
		Volume24h:    market.Volume24h,
		OpenInterest: market.OpenInterest,
	}

	if side := model.Side(market.Result); side.Valid() {
		q.Result = side
	}
	if market.YesBid != nil && market.YesAsk != nil {
		spread := *market.YesAsk - *market.YesBid
		mid := (*market.YesBid + *market.YesAsk) / 2
		q.Spread = &spread
		q.Midpoint = &mid
	}
	if market.LastPrice != nil && market.PreviousPrice != nil {
		delta := *market.LastPrice - *market.PreviousPrice
		q.PriceDelta = &delta
	}

	// Depth is display context only; a failed orderbook fetch is not worth
	// degrading an otherwise good quote.
	if ob, err := c.fetchOrderbook(ctx, ticker); err == nil && ob != nil {
		yesDepth := sumDepth(ob.Yes)
		noDepth := sumDepth(ob.No)
		q.YesDepth = &yesDepth
		q.NoDepth = &noDepth
	}

	return q
}

func (c *Client) fetchMarket(ctx context.Context, ticker string) (*marketPayload, bool, error) {
	var out struct {
		Market *marketPayload `json:"market"`
	}
	found, err := c.getJSON(ctx, "/markets/"+ticker, &out)
	if err != nil || !found || out.Market == nil {
		return nil, found && out.Market != nil, err
	}
	return out.Market, true, nil
}

func (c *Client) fetchOrderbook(ctx context.Context, ticker string) (*orderbookPayload, error) {
	var out struct {
		Orderbook *orderbookPayload `json:"orderbook"`
	}
	found, err := c.getJSON(ctx, "/markets/"+ticker+"/orderbook", &out)
	if err != nil || !found {
		return nil, err
	}
	return out.Orderbook, nil
}

// getJSON performs a rate-limited GET with exponential backoff on transport
// errors and 5xx responses. A 404 reports found=false without error.
func (c *Client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	found := true
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			found = false
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("quote: %s: status %d", path, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("quote: %s: status %d", path, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("quote: decode %s: %w", path, err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxWait

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return false, err
	}
	return found, nil
}

func sumDepth(levels [][2]int) int {
	total := 0
	for _, l := range levels {
		total += l[1]
	}
	return total
}
