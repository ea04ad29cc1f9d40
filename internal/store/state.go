package store

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/portfolio"
	"github.com/KerimSelki/crypto-vault/internal/provider"
)

// DefaultPortfolio is the name of the portfolio a fresh state starts with.
const DefaultPortfolio = "Main Portfolio"

// MaxReports bounds the report history.
const MaxReports = 24

func defaultPortfolios() map[string][]portfolio.Item {
	return map[string][]portfolio.Item{
		DefaultPortfolio: {
			{AssetID: "bitcoin", Quantity: decimal.RequireFromString("0.5"), EntryPrice: decimal.NewFromInt(65000)},
			{AssetID: "ethereum", Quantity: decimal.NewFromInt(4), EntryPrice: decimal.NewFromInt(2800)},
			{AssetID: "solana", Quantity: decimal.NewFromInt(25), EntryPrice: decimal.NewFromInt(120)},
		},
	}
}

// KnownAssets returns assets added beyond the default catalog.
func (s *Store) KnownAssets() ([]asset.Asset, error) {
	var out []asset.Asset
	if err := s.Get(KeyKnownAssets, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// AddKnownAsset stores a, replacing an entry with the same id.
func (s *Store) AddKnownAsset(a asset.Asset) error {
	_, err := update(s, KeyKnownAssets, nil, func(v *[]asset.Asset) error {
		for i := range *v {
			if (*v)[i].ID == a.ID {
				(*v)[i] = a
				return nil
			}
		}
		*v = append(*v, a)
		return nil
	})
	return err
}

// Portfolios returns every portfolio sorted by name. A fresh state holds
// DefaultPortfolio.
func (s *Store) Portfolios() ([]portfolio.Portfolio, error) {
	m := defaultPortfolios()
	if err := s.Get(KeyPortfolios, &m); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	out := make([]portfolio.Portfolio, 0, len(m))
	for name, items := range m {
		out = append(out, portfolio.Portfolio{Name: name, Items: items})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Portfolio returns one portfolio by name.
func (s *Store) Portfolio(name string) (portfolio.Portfolio, error) {
	all, err := s.Portfolios()
	if err != nil {
		return portfolio.Portfolio{}, err
	}
	for _, p := range all {
		if p.Name == name {
			return p, nil
		}
	}
	return portfolio.Portfolio{}, fmt.Errorf("portfolio %q: %w", name, ErrNotFound)
}

// PutPortfolio creates or replaces a portfolio.
func (s *Store) PutPortfolio(p portfolio.Portfolio) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return errors.New("portfolio name is empty")
	}
	_, err := update(s, KeyPortfolios, defaultPortfolios, func(m *map[string][]portfolio.Item) error {
		if *m == nil {
			*m = map[string][]portfolio.Item{}
		}
		(*m)[name] = p.Items
		return nil
	})
	return err
}

// AddItem appends a holding to a portfolio, creating the portfolio when
// needed. Items without a category go to portfolio.DefaultCategory.
func (s *Store) AddItem(name string, it portfolio.Item) error {
	if !it.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", it.Quantity)
	}
	if it.EntryPrice.IsNegative() {
		return fmt.Errorf("entry price must not be negative, got %s", it.EntryPrice)
	}
	if it.Category == "" {
		it.Category = portfolio.DefaultCategory
	}
	_, err := update(s, KeyPortfolios, defaultPortfolios, func(m *map[string][]portfolio.Item) error {
		if *m == nil {
			*m = map[string][]portfolio.Item{}
		}
		(*m)[name] = append((*m)[name], it)
		return nil
	})
	return err
}

// DeletePortfolio removes a portfolio. The last portfolio cannot be removed.
func (s *Store) DeletePortfolio(name string) error {
	_, err := update(s, KeyPortfolios, defaultPortfolios, func(m *map[string][]portfolio.Item) error {
		if _, ok := (*m)[name]; !ok {
			return fmt.Errorf("portfolio %q: %w", name, ErrNotFound)
		}
		if len(*m) == 1 {
			return errors.New("cannot delete the last portfolio")
		}
		delete(*m, name)
		return nil
	})
	return err
}

// ActivePortfolio returns the selected portfolio name.
func (s *Store) ActivePortfolio() (string, error) {
	var name string
	if err := s.Get(KeyActivePortfolio, &name); err != nil {
		if errors.Is(err, ErrNotFound) {
			return DefaultPortfolio, nil
		}
		return "", err
	}
	return name, nil
}

func (s *Store) SetActivePortfolio(name string) error {
	if _, err := s.Portfolio(name); err != nil {
		return err
	}
	return s.Put(KeyActivePortfolio, name)
}

// Categories returns the category list; a fresh state holds only
// portfolio.DefaultCategory.
func (s *Store) Categories() ([]string, error) {
	out := []string{portfolio.DefaultCategory}
	if err := s.Get(KeyCategories, &out); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return out, nil
}

func (s *Store) AddCategory(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("category name is empty")
	}
	_, err := update(s, KeyCategories, func() []string { return []string{portfolio.DefaultCategory} }, func(v *[]string) error {
		if !slices.Contains(*v, name) {
			*v = append(*v, name)
		}
		return nil
	})
	return err
}

// CachedPrice is a price cache entry.
type CachedPrice struct {
	Record   provider.PriceRecord `json:"record"`
	CachedAt time.Time            `json:"cached_at"`
}

// SavePrices merges m into the price cache.
func (s *Store) SavePrices(m provider.PriceMap, at time.Time) error {
	_, err := update(s, KeyPriceCache, nil, func(v *map[asset.ID]CachedPrice) error {
		if *v == nil {
			*v = make(map[asset.ID]CachedPrice, len(m))
		}
		for id, r := range m {
			(*v)[id] = CachedPrice{Record: r, CachedAt: at.UTC()}
		}
		return nil
	})
	return err
}

// LoadPrices returns the cached records; an empty cache is not an error.
func (s *Store) LoadPrices() (provider.PriceMap, error) {
	var v map[asset.ID]CachedPrice
	if err := s.Get(KeyPriceCache, &v); err != nil {
		if errors.Is(err, ErrNotFound) {
			return provider.PriceMap{}, nil
		}
		return nil, err
	}
	out := make(provider.PriceMap, len(v))
	for id, c := range v {
		out[id] = c.Record
	}
	return out, nil
}

// Report is one entry of the report history.
type Report struct {
	ID        string          `json:"id"`
	Date      time.Time       `json:"date"`
	Portfolio string          `json:"portfolio"`
	Currency  string          `json:"currency"`
	Value     decimal.Decimal `json:"value"`
	Invested  decimal.Decimal `json:"invested"`
	PnL       decimal.Decimal `json:"pnl"`
	PnLPct    decimal.Decimal `json:"pnl_pct"`
	Assets    int             `json:"assets"`
}

// ReportFromSummary builds a history entry from a valuation.
func ReportFromSummary(sum portfolio.Summary, at time.Time) Report {
	return Report{
		Date:      at.UTC(),
		Portfolio: sum.Name,
		Currency:  sum.Currency,
		Value:     sum.Value,
		Invested:  sum.Invested,
		PnL:       sum.PnL,
		PnLPct:    sum.PnLPct,
		Assets:    sum.Count,
	}
}

// AppendReport prepends r to the history, assigning an id, and keeps the
// newest MaxReports entries.
func (s *Store) AppendReport(r Report) (Report, error) {
	r.ID = uuid.NewString()
	_, err := update(s, KeyReportHistory, nil, func(v *[]Report) error {
		*v = append([]Report{r}, *v...)
		if len(*v) > MaxReports {
			*v = (*v)[:MaxReports]
		}
		return nil
	})
	return r, err
}

// Reports returns the history, newest first.
func (s *Store) Reports() ([]Report, error) {
	var out []Report
	if err := s.Get(KeyReportHistory, &out); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return out, nil
}
