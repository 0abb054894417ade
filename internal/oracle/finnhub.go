package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"stockfolio/internal/errors"

	"github.com/shopspring/decimal"
)

const defaultFinnhubBaseURL = "https://finnhub.io/api/v1"

var _ Oracle = (*Finnhub)(nil)

// Finnhub reads the latest trade price from the Finnhub quote endpoint.
type Finnhub struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewFinnhub builds a client. An empty baseURL targets the public API.
func NewFinnhub(client *http.Client, baseURL, apiKey string) *Finnhub {
	if client == nil {
		client = http.DefaultClient
	}
	if len(baseURL) == 0 {
		baseURL = defaultFinnhubBaseURL
	}
	return &Finnhub{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// finnhubQuote is the subset of the /quote payload the oracle reads.
// Finnhub answers unknown tickers with 200 and all fields zero.
type finnhubQuote struct {
	Current       decimal.Decimal `json:"c"`
	PreviousClose decimal.Decimal `json:"pc"`
	Timestamp     int64           `json:"t"`
}

func (f *Finnhub) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	if len(f.apiKey) != 0 {
		query.Set("token", f.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/quote?"+query.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, unavailable(err, symbol)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, unavailable(err, symbol)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return decimal.Decimal{}, unavailable(fmt.Errorf("http status %s", resp.Status), symbol)
	}

	var payload finnhubQuote
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Decimal{}, unavailable(errors.Wrap(err, "decode quote payload"), symbol)
	}

	return checkPrice(payload.Current, symbol)
}
