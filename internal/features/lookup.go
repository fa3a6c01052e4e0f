package features

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/fetch"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Service roots used when the configuration leaves them empty.
const (
	WeatherBaseURL = "https://api.openweathermap.org"
	CryptoBaseURL  = "https://api.coingecko.com/api/v3"
	NewsBaseURL    = "https://newsapi.org/v2"
)

const (
	defaultCoin        = "bitcoin"
	maxCoinSuggestions = 5
	maxTopCoins        = 25
	defaultNewsLimit   = 5
	maxNewsLimit       = 10
)

var lookupCooldown = registry.Cooldown{Max: 1, Window: 10 * time.Second}

var coinAliases = map[string]string{
	"btc":   "bitcoin",
	"eth":   "ethereum",
	"doge":  "dogecoin",
	"ada":   "cardano",
	"sol":   "solana",
	"xrp":   "ripple",
	"matic": "polygon",
	"bnb":   "binancecoin",
	"usdt":  "tether",
	"usdc":  "usd-coin",
}

var newsCategories = map[string]string{
	"tech":       "technology",
	"technology": "technology",
	"business":   "business",
	"sports":     "sports",
	"health":     "health",
	"science":    "science",
	"general":    "general",
}

// Lookup has the commands backed by third-party HTTP APIs.
type Lookup struct {
	deps *Deps
}

func (m *Lookup) Name() string { return ModuleLookup }

func (m *Lookup) Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Name:          "lookup.weather",
			Trigger:       registry.Command("weather"),
			Class:         registry.Responder,
			Cooldown:      lookupCooldown,
			Description:   "Get the weather for a location",
			Usage:         "weather <location>",
			Slash:         true,
			SlashArgument: "location",
			Handler:       registry.HandlerFunc(m.weather),
		},
		{
			Name:          "lookup.crypto",
			Trigger:       registry.Command("crypto", "price", "btc", "bitcoin"),
			Class:         registry.Responder,
			Cooldown:      lookupCooldown,
			Description:   "Get a cryptocurrency price",
			Usage:         "crypto [coin]",
			Slash:         true,
			SlashArgument: "coin",
			Handler:       registry.HandlerFunc(m.crypto),
		},
		{
			Name:        "lookup.cryptotop",
			Trigger:     registry.Command("cryptotop", "topcrypto"),
			Class:       registry.Responder,
			Cooldown:    lookupCooldown,
			Description: "Get the top cryptocurrencies by market cap",
			Usage:       "cryptotop [1-25]",
			Handler:     registry.HandlerFunc(m.cryptoTop),
		},
		{
			Name:        "lookup.news",
			Trigger:     registry.Command("news"),
			Class:       registry.Responder,
			Cooldown:    lookupCooldown,
			Description: "Get the latest headlines",
			Usage:       "news [category] [limit]",
			Handler:     registry.HandlerFunc(m.news),
		},
		{
			Name:        "lookup.newssearch",
			Trigger:     registry.Command("newssearch", "searchnews"),
			Class:       registry.Responder,
			Cooldown:    lookupCooldown,
			Description: "Search news articles",
			Usage:       "newssearch <query>",
			Handler:     registry.HandlerFunc(m.newsSearch),
		},
	}
}

func (m *Lookup) weather(ctx context.Context, inv *registry.Invocation) error {
	location := inv.Rest
	if location == "" {
		return missingArgument(m.deps, inv)
	}
	if m.deps.Weather == nil || m.deps.WeatherKey == "" {
		return apperr.Configuration("Weather API key is not set.",
			"Set WEATHER_API_KEY in your .env file. Get a free API key at: https://openweathermap.org/api")
	}

	data, err := m.deps.Weather.Get(ctx, "/data/2.5/weather", url.Values{
		"q":     {location},
		"appid": {m.deps.WeatherKey},
		"units": {"metric"},
	})
	if err != nil {
		if fetch.StatusCode(err) == 404 {
			return apperr.Usage("Location '%s' not found. Please check the spelling.", location)
		}
		return err
	}

	place := data.Get("name").String()
	if country := data.Get("sys.country").String(); country != "" {
		place += ", " + country
	}
	e := &bot.Embed{
		Title:        "🌤️ Weather in " + place,
		Description:  "**" + titleWords(data.Get("weather.0.description").String()) + "**",
		Color:        bot.ColorBlue,
		ThumbnailURL: fmt.Sprintf("http://openweathermap.org/img/wn/%s@2x.png", data.Get("weather.0.icon").String()),
	}
	e.AddField("🌡️ Temperature", number(data.Get("main.temp").Float())+"°C", true)
	e.AddField("🤔 Feels Like", number(data.Get("main.feels_like").Float())+"°C", true)
	e.AddField("💧 Humidity", number(data.Get("main.humidity").Float())+"%", true)
	e.AddField("🌬️ Wind Speed", number(data.Get("wind.speed").Float())+" m/s", true)
	e.AddField("📊 Pressure", number(data.Get("main.pressure").Float())+" hPa", true)
	e.AddField("👁️ Visibility", number(data.Get("visibility").Float()/1000)+" km", true)
	inv.ReplyEmbed(ctx, e)
	return nil
}

// CoinID normalizes user input into a CoinGecko coin id.
func CoinID(input string) string {
	id := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(input)), " ", "-")
	if id == "" {
		return defaultCoin
	}
	if alias, ok := coinAliases[id]; ok {
		return alias
	}
	return id
}

func (m *Lookup) crypto(ctx context.Context, inv *registry.Invocation) error {
	if m.deps.Crypto == nil {
		return apperr.Configuration("The crypto service is not configured.", "Set lookup.crypto_url in the configuration.")
	}
	coin := orDefault(inv.Rest, defaultCoin)
	id := CoinID(coin)
	data, err := m.deps.Crypto.Get(ctx, "/simple/price", url.Values{
		"ids":                 {id},
		"vs_currencies":       {"usd"},
		"include_24hr_change": {"true"},
		"include_market_cap":  {"true"},
	})
	if err != nil {
		return err
	}

	quote := data.Get(gjson.Escape(id))
	if !quote.Exists() {
		return m.suggestCoins(ctx, inv, coin)
	}
	price := quote.Get("usd").Float()
	change := quote.Get("usd_24h_change").Float()
	marketCap := quote.Get("usd_market_cap").Float()

	color, trend := bot.ColorGreen, "📈"
	if change < 0 {
		color, trend = bot.ColorRed, "📉"
	}
	e := &bot.Embed{
		Title:     "💰 " + titleWords(strings.ReplaceAll(id, "-", " ")) + " Price",
		Color:     color,
		Footer:    trend + " CoinGecko API",
		Timestamp: m.deps.now(),
	}
	e.AddField("💵 Price", USD(price), true)
	e.AddField("📈 24h Change", fmt.Sprintf("%+.2f%%", change), true)
	e.AddField("💼 Market Cap", marketCapString(marketCap), true)
	inv.ReplyEmbed(ctx, e)
	return nil
}

func (m *Lookup) suggestCoins(ctx context.Context, inv *registry.Invocation, coin string) error {
	notFound := apperr.Usage("Cryptocurrency '%s' not found. Try: bitcoin, ethereum, dogecoin, etc.", coin)
	found, err := m.deps.Crypto.Get(ctx, "/search", url.Values{"query": {coin}})
	if err != nil {
		inv.Logger.WithError(err).Debug("coin-search-failed")
		return notFound
	}
	var names []string
	for _, c := range found.Get("coins").Array() {
		if len(names) == maxCoinSuggestions {
			break
		}
		names = append(names, "• "+orDefault(c.Get("name").String(), "Unknown"))
	}
	if len(names) == 0 {
		return notFound
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "❓ Coin Not Found",
		Description: fmt.Sprintf("'%s' not found. Did you mean:\n\n%s", coin, strings.Join(names, "\n")),
		Color:       bot.ColorOrange,
	})
	return nil
}

func (m *Lookup) cryptoTop(ctx context.Context, inv *registry.Invocation) error {
	if m.deps.Crypto == nil {
		return apperr.Configuration("The crypto service is not configured.", "Set lookup.crypto_url in the configuration.")
	}
	limit := 10
	if arg := inv.Arg(0); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > maxTopCoins {
			return apperr.Usage("Please specify a number between 1 and %d.", maxTopCoins)
		}
		limit = n
	}
	data, err := m.deps.Crypto.Get(ctx, "/coins/markets", url.Values{
		"vs_currency": {"usd"},
		"order":       {"market_cap_desc"},
		"per_page":    {strconv.Itoa(limit)},
		"page":        {"1"},
	})
	if err != nil {
		return err
	}

	var lines []string
	for i, c := range data.Array() {
		if i == limit {
			break
		}
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		lines = append(lines, fmt.Sprintf("%s **%s** (%s) - %s (%+.2f%%)",
			rank,
			c.Get("name").String(),
			strings.ToUpper(c.Get("symbol").String()),
			USD(c.Get("current_price").Float()),
			c.Get("price_change_percentage_24h").Float()))
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       fmt.Sprintf("🏆 Top %d Cryptocurrencies", limit),
		Description: strings.Join(lines, "\n"),
		Color:       bot.ColorGold,
		Footer:      "CoinGecko API",
	})
	return nil
}

// USD formats a dollar price: six decimals below one dollar, otherwise
// thousands separators and cents.
func USD(price float64) string {
	d := decimal.NewFromFloat(price)
	if d.LessThan(decimal.NewFromInt(1)) {
		return "$" + d.StringFixed(6)
	}
	cents := d.Round(2)
	whole := cents.IntPart()
	frac := cents.Sub(decimal.NewFromInt(whole)).Shift(2).IntPart()
	return fmt.Sprintf("$%s.%02d", humanize.Comma(whole), frac)
}

func marketCapString(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return "$" + humanize.Comma(decimal.NewFromFloat(v).Round(0).IntPart())
}

func (m *Lookup) newsClient() error {
	if m.deps.News == nil || m.deps.NewsKey == "" {
		return apperr.Configuration("News API key is not set.",
			"Get a free key at: https://newsapi.org/register\nAdd NEWS_API_KEY to your .env file.")
	}
	return nil
}

func (m *Lookup) news(ctx context.Context, inv *registry.Invocation) error {
	if err := m.newsClient(); err != nil {
		return err
	}
	category, ok := newsCategories[strings.ToLower(inv.Arg(0))]
	if !ok {
		category = "general"
	}
	limit := defaultNewsLimit
	if n, err := strconv.Atoi(inv.Arg(1)); err == nil && n >= 1 && n <= maxNewsLimit {
		limit = n
	}

	data, err := m.deps.News.Get(ctx, "/top-headlines", url.Values{
		"category": {category},
		"country":  {"us"},
		"pageSize": {strconv.Itoa(limit)},
	})
	if err != nil {
		return err
	}
	articles := data.Get("articles").Array()
	if len(articles) == 0 {
		return apperr.Usage("No news found for category '%s'.", category)
	}

	e := &bot.Embed{
		Title:     "📰 Latest " + capitalize(category) + " News",
		Color:     bot.ColorBlue,
		Footer:    fmt.Sprintf("NewsAPI | %d article(s)", len(articles)),
		Timestamp: m.deps.now(),
	}
	for i, a := range articles {
		if i == limit {
			break
		}
		e.AddField(
			fmt.Sprintf("%d. %s", i+1, clip(orDefault(a.Get("title").String(), "No title"), 256)),
			fmt.Sprintf("[Read more](%s) | Source: %s", orDefault(a.Get("url").String(), "#"), orDefault(a.Get("source.name").String(), "Unknown")),
			false,
		)
	}
	inv.ReplyEmbed(ctx, e)
	return nil
}

func (m *Lookup) newsSearch(ctx context.Context, inv *registry.Invocation) error {
	if inv.Rest == "" {
		return missingArgument(m.deps, inv)
	}
	if err := m.newsClient(); err != nil {
		return err
	}
	data, err := m.deps.News.Get(ctx, "/everything", url.Values{
		"q":        {inv.Rest},
		"sortBy":   {"publishedAt"},
		"pageSize": {strconv.Itoa(defaultNewsLimit)},
		"language": {"en"},
	})
	if err != nil {
		return err
	}
	articles := data.Get("articles").Array()
	if len(articles) == 0 {
		return apperr.Usage("No articles found for '%s'.", inv.Rest)
	}

	e := &bot.Embed{Title: "🔍 News Search: " + inv.Rest, Color: bot.ColorBlue}
	for i, a := range articles {
		if i == defaultNewsLimit {
			break
		}
		published := a.Get("publishedAt").String()
		if len(published) > 10 {
			published = published[:10]
		}
		e.AddField(
			fmt.Sprintf("%d. %s", i+1, clip(orDefault(a.Get("title").String(), "No title"), 256)),
			fmt.Sprintf("[Read more](%s)\nSource: %s | %s", orDefault(a.Get("url").String(), "#"), orDefault(a.Get("source.name").String(), "Unknown"), published),
			false,
		)
	}
	inv.ReplyEmbed(ctx, e)
	return nil
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// titleWords capitalizes every word of s.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}
