package coingecko

import (
    "context"
    "encoding/json"
    "fmt"
    "maps"
    "net/http"
    "strconv"
    "strings"
)

// Market is one row of /coins/markets.
type Market struct {
	ID             string
	Symbol         string
	Name           string
	CurrentPrice   *float64
	MarketCap      *float64
	PriceChange24h *float64
	PriceChange7d  *float64
}

// GetMarkets retrieves one page of coins ordered by market cap.
func (c *CoinGeckoAPIClient) GetMarkets(ctx context.Context, vsCurrency string, perPage, page int, opts ...CoinGeckoAPIClientOption) ([]Market, error) {
	override := c.clone(opts)

	if perPage <= 0 || perPage > 250 {
		perPage = 250
	}
	if page <= 0 {
		page = 1
	}

	query := maps.Clone(override.query)
	query.Set("vs_currency", vsCurrency)
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("page", strconv.Itoa(page))
	query.Set("sparkline", "false")
	query.Set("price_change_percentage", "24h,7d")

	url := fmt.Sprintf("%s/coins/markets?%s", override.baseURL, query.Encode())
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

	var body []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding markets response: %w", err)
	}

	var markets = make([]Market, 0, len(body))
	for _, row := range body {
		// {
		//   "id": "bitcoin",
		//   "symbol": "btc",
		//   "name": "Bitcoin",
		//   "current_price": 97000,
		//   "market_cap": 1920000000000,
		//   "price_change_percentage_24h": 1.2,
		//   "price_change_percentage_7d_in_currency": 4.1
		// }
		id, _ := row["id"].(string)
		if strings.TrimSpace(id) == "" {
			continue
		}
		symbol, _ := row["symbol"].(string)
		name, _ := row["name"].(string)

		// rows with mistyped fields are skipped, not fatal
		price, err := parseNullableValue[float64](row, "current_price")
		if err != nil {
			continue
		}
		marketCap, _ := parseNullableValue[float64](row, "market_cap")
		change24h, _ := parseNullableValue[float64](row, "price_change_percentage_24h")
		change7d, _ := parseNullableValue[float64](row, "price_change_percentage_7d_in_currency")

		markets = append(markets, Market{
			ID:             id,
			Symbol:         symbol,
			Name:           name,
			CurrentPrice:   price,
			MarketCap:      marketCap,
			PriceChange24h: change24h,
			PriceChange7d:  change7d,
		})
	}

	return markets, nil
}

func checkStatus(res *http.Response) error {
	switch res.StatusCode {
	case http.StatusOK:
		return nil

	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized")

	case http.StatusTooManyRequests:
		return ErrRateLimited

	default:
		return fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
}

// parseNullableValue is a helper function to parse a nullable value.
func parseNullableValue[T any](data map[string]any, key string) (*T, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, nil
	}
	if v, ok := v.(T); ok {
		return &v, nil
	}
	return nil, fmt.Errorf("unexpected type: %T", v)
}
