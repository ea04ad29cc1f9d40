package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// SimplePrice is the /simple/price entry of one coin.
type SimplePrice struct {
	Price     *float64
	Change24h *float64
	Change7d  *float64
	MarketCap *float64
}

// GetSimplePrice retrieves prices for specific coin ids.
func (c *CoinGeckoAPIClient) GetSimplePrice(ctx context.Context, ids []string, vsCurrency string, opts ...CoinGeckoAPIClientOption) (map[string]SimplePrice, error) {
	if len(ids) == 0 {
		return map[string]SimplePrice{}, nil
	}
	override := c.clone(opts)
	vs := strings.ToLower(vsCurrency)

	query := maps.Clone(override.query)
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", vs)
	query.Set("include_24hr_change", "true")
	query.Set("include_7d_change", "true")
	query.Set("include_market_cap", "true")

	url := fmt.Sprintf("%s/simple/price?%s", override.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return nil, err
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding simple price response: %w", err)
	}

	var prices = make(map[string]SimplePrice, len(body))
	for id, raw := range body {
		// {"usd": 97000, "usd_market_cap": 1.9e12, "usd_24h_change": 1.2, "usd_7d_change": 4.1}
		var entry map[string]any
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		price, err := parseNullableValue[float64](entry, vs)
		if err != nil || price == nil {
			continue
		}
		change24h, _ := parseNullableValue[float64](entry, vs+"_24h_change")
		change7d, _ := parseNullableValue[float64](entry, vs+"_7d_change")
		marketCap, _ := parseNullableValue[float64](entry, vs+"_market_cap")
		prices[id] = SimplePrice{Price: price, Change24h: change24h, Change7d: change7d, MarketCap: marketCap}
	}

	return prices, nil
}
