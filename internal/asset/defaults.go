package asset

// DefaultCoins are the crypto assets every fresh catalog tracks.
var DefaultCoins = []Asset{
	{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", Market: Crypto},
	{ID: "ethereum", Symbol: "ETH", Name: "Ethereum", Market: Crypto},
	{ID: "binancecoin", Symbol: "BNB", Name: "BNB", Market: Crypto},
	{ID: "solana", Symbol: "SOL", Name: "Solana", Market: Crypto},
	{ID: "ripple", Symbol: "XRP", Name: "XRP", Market: Crypto},
	{ID: "cardano", Symbol: "ADA", Name: "Cardano", Market: Crypto},
	{ID: "avalanche-2", Symbol: "AVAX", Name: "Avalanche", Market: Crypto},
	{ID: "polkadot", Symbol: "DOT", Name: "Polkadot", Market: Crypto},
	{ID: "dogecoin", Symbol: "DOGE", Name: "Dogecoin", Market: Crypto},
	{ID: "chainlink", Symbol: "LINK", Name: "Chainlink", Market: Crypto},
	{ID: "tron", Symbol: "TRX", Name: "TRON", Market: Crypto},
	{ID: "matic-network", Symbol: "MATIC", Name: "Polygon", Market: Crypto},
	{ID: "litecoin", Symbol: "LTC", Name: "Litecoin", Market: Crypto},
	{ID: "uniswap", Symbol: "UNI", Name: "Uniswap", Market: Crypto},
	{ID: "stellar", Symbol: "XLM", Name: "Stellar", Market: Crypto},
}

func us(id, name, sector string) Asset {
	return Asset{ID: ID(id), Symbol: id, Name: name, Market: US, Currency: "USD", Sector: sector}
}

// USEquities are the default US stocks and ETFs.
var USEquities = []Asset{
	us("AAPL", "Apple Inc.", "Technology"),
	us("MSFT", "Microsoft Corp.", "Technology"),
	us("TSLA", "Tesla Inc.", "Automotive"),
	us("NVDA", "NVIDIA Corp.", "Technology"),
	us("GOOGL", "Alphabet Inc.", "Technology"),
	us("AMZN", "Amazon.com", "E-Commerce"),
	us("META", "Meta Platforms", "Technology"),
	us("VOO", "Vanguard S&P 500 ETF", "ETF"),
	us("QQQ", "Invesco QQQ Trust", "ETF"),
	us("SPY", "SPDR S&P 500 ETF", "ETF"),
}

func bist(code, name, sector string) Asset {
	return Asset{ID: ID(code + bistSuffix), Symbol: code + bistSuffix, Name: name, Market: BIST, Currency: "TRY", Sector: sector}
}

// BISTEquities are the default Borsa Istanbul stocks.
var BISTEquities = []Asset{
	bist("THYAO", "Türk Hava Yolları", "Transportation"),
	bist("GARAN", "Garanti BBVA", "Banking"),
	bist("ASELS", "Aselsan", "Defense"),
	bist("KCHOL", "Koç Holding", "Holding"),
	bist("BIMAS", "BİM Mağazalar", "Retail"),
	bist("EREGL", "Ereğli Demir Çelik", "Industry"),
}

func fund(code, name, sector string) Asset {
	return Asset{ID: FundID(code), Symbol: code, Name: name, Market: TEFAS, Currency: "TRY", Sector: sector}
}

// TEFASFunds are the default mutual funds.
var TEFASFunds = []Asset{
	fund("IPB", "İş Portföy BIST 100 Fonu", "Equity"),
	fund("ZPX", "Ziraat BIST 30 Fonu", "Equity"),
	fund("AFT", "Ak Portföy BIST Temettü", "Equity"),
	fund("AFA", "Ak Portföy Hisse Fonu", "Equity"),
	fund("YHS", "Yapı Kredi Hisse Fonu", "Equity"),
	fund("GHS", "Garanti Hisse Fonu", "Equity"),
	fund("ICF", "İş Portföy BIST 30 Fonu", "Equity"),
	fund("TLS", "TEB Hisse Fonu", "Equity"),
	fund("TI2", "İş Portföy Borçlanma Fonu", "Debt"),
	fund("DZE", "Deniz Portföy Eurobond", "Debt"),
	fund("AKU", "Ak Portföy Kısa Vadeli Borç", "Debt"),
	fund("TAU", "TEB Kısa Vadeli Borç", "Debt"),
	fund("OFA", "OYAK Altın Fonu", "Gold"),
	fund("GAL", "Garanti Altın Fonu", "Gold"),
	fund("IAF", "İş Portföy Altın Fonu", "Gold"),
	fund("AAL", "Ak Portföy Altın Fonu", "Gold"),
	fund("YAC", "Yapı Kredi Agresif Fon", "Mixed"),
	fund("MAC", "Marmara Cap. Değişken", "Mixed"),
	fund("TCD", "TEB Portföy Değişken", "Mixed"),
	fund("AK2", "Ak Portföy Amerikan", "Foreign"),
	fund("IYH", "İş Portföy Yab. Hisse", "Foreign"),
	fund("GAE", "Garanti Emeklilik Fonu", "Pension"),
	fund("AGE", "Ak Emeklilik Fonu", "Pension"),
	fund("APL", "Ak Portföy Para Piyasası", "Money Market"),
	fund("IPL", "İş Portföy Para Piyasası", "Money Market"),
	fund("GPL", "Garanti Para Piyasası", "Money Market"),
	fund("ATS", "Ak Portföy Teknoloji", "Sector"),
	fund("ITE", "İş Portföy Teknoloji", "Sector"),
}

// Defaults returns every default seed.
func Defaults() []Asset {
	out := make([]Asset, 0, len(DefaultCoins)+len(USEquities)+len(BISTEquities)+len(TEFASFunds))
	out = append(out, DefaultCoins...)
	out = append(out, USEquities...)
	out = append(out, BISTEquities...)
	out = append(out, TEFASFunds...)
	return out
}

// DefaultCatalog returns a catalog holding Defaults.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(Defaults()...)
	if err != nil {
		panic(err)
	}
	return c
}
