package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
)

// FinanceNewsToolName is the name the model uses to address financial news.
const FinanceNewsToolName = "yahoo_finance_news"

const yahooHeadlineURL = "https://feeds.finance.yahoo.com/rss/2.0/headline"

// FinanceNews fetches recent headlines for a ticker from the Yahoo Finance feed.
type FinanceNews struct {
	opts Options
}

// NewFinanceNews creates the financial news adapter.
func NewFinanceNews(opts Options) (*FinanceNews, error) {
	opts, err := opts.withDefaults(yahooHeadlineURL)
	if err != nil {
		return nil, fmt.Errorf("finance news: %w", err)
	}
	return &FinanceNews{opts: opts}, nil
}

// Name returns the tool name.
func (f *FinanceNews) Name() string { return FinanceNewsToolName }

// Description returns the tool description.
func (f *FinanceNews) Description() string {
	return "Useful for when you need to find financial news about a public company. Input should be a company ticker. For example, AAPL for Apple, MSFT for Microsoft."
}

// Invoke returns "title\nsummary" entries for ticker, newest first.
func (f *FinanceNews) Invoke(ctx context.Context, ticker string) (string, error) {
	ticker = normalizeTicker(ticker)
	if ticker == "" {
		return "", errors.New("finance news: empty ticker")
	}

	body, _, err := get(ctx, f.opts.Client, f.opts.BaseURL, url.Values{
		"s":      {ticker},
		"region": {"US"},
		"lang":   {"en-US"},
	})
	if err != nil {
		return "", fmt.Errorf("finance news: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return "", fmt.Errorf("finance news: decode feed: %w", err)
	}

	var entries []string
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		entry := title
		if summary := strings.TrimSpace(item.Description); summary != "" {
			entry += "\n" + summary
		}
		entries = append(entries, entry)
		if len(entries) >= f.opts.MaxResults {
			break
		}
	}

	if len(entries) == 0 {
		return fmt.Sprintf("No news found for company that searched with %s ticker.", ticker), nil
	}
	return strings.Join(entries, "\n\n"), nil
}

// normalizeTicker turns "$aapl " or "latest news on AAPL" style input into a symbol.
func normalizeTicker(input string) string {
	input = strings.Trim(strings.TrimSpace(input), `"'`)
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return ""
	}
	symbol := fields[len(fields)-1]
	for _, f := range fields {
		candidate := strings.TrimPrefix(f, "$")
		if candidate != "" && candidate == strings.ToUpper(candidate) && isTickerLike(candidate) {
			symbol = candidate
			break
		}
	}
	return strings.ToUpper(strings.TrimPrefix(symbol, "$"))
}

func isTickerLike(s string) bool {
	if len(s) > 10 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' && r != '^' && r != '=' {
			return false
		}
	}
	return true
}
