package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// SearchToolName is the name the model uses to address web search.
const SearchToolName = "duckduckgo_search"

const (
	duckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"
	noSearchResult    = "No good DuckDuckGo Search Result was found"
)

// voidElements never have an end tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true, "wbr": true,
}

// WebSearch queries the DuckDuckGo HTML endpoint and returns result snippets.
type WebSearch struct {
	opts Options
}

// NewWebSearch creates the web search adapter.
func NewWebSearch(opts Options) (*WebSearch, error) {
	opts, err := opts.withDefaults(duckDuckGoHTMLURL)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	return &WebSearch{opts: opts}, nil
}

// Name returns the tool name.
func (s *WebSearch) Name() string { return SearchToolName }

// Description returns the tool description.
func (s *WebSearch) Description() string {
	return "A wrapper around DuckDuckGo Search. Useful for when you need to answer questions about current events. Input should be a search query."
}

// Invoke searches the web for query.
func (s *WebSearch) Invoke(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("web search: empty query")
	}

	body, _, err := get(ctx, s.opts.Client, s.opts.BaseURL, url.Values{"q": {query}})
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}

	snippets, err := extractSnippets(bytes.NewReader(body), s.opts.MaxResults)
	if err != nil {
		return "", fmt.Errorf("web search: parse results: %w", err)
	}
	if len(snippets) == 0 {
		return noSearchResult, nil
	}
	return strings.Join(snippets, " "), nil
}

// extractSnippets collects the text of elements carrying the result__snippet class.
func extractSnippets(r io.Reader, limit int) ([]string, error) {
	var (
		snippets []string
		current  strings.Builder
		depth    int
	)

	tokenizer := html.NewTokenizer(r)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if errors.Is(tokenizer.Err(), io.EOF) {
				return snippets, nil
			}
			return snippets, tokenizer.Err()
		case html.StartTagToken:
			name, hasAttr := tokenizer.TagName()
			if voidElements[string(name)] {
				if depth > 0 {
					current.WriteByte(' ')
				}
				continue
			}
			if depth > 0 {
				depth++
				continue
			}
			if hasAttr && hasClass(tokenizer, "result__snippet") {
				depth = 1
				current.Reset()
			}
		case html.EndTagToken:
			if depth == 0 {
				continue
			}
			depth--
			if depth > 0 {
				continue
			}
			if text := strings.Join(strings.Fields(current.String()), " "); text != "" {
				snippets = append(snippets, text)
				if len(snippets) >= limit {
					return snippets, nil
				}
			}
		case html.TextToken:
			if depth > 0 {
				current.Write(tokenizer.Text())
			}
		}
	}
}

func hasClass(tokenizer *html.Tokenizer, class string) bool {
	for {
		key, val, more := tokenizer.TagAttr()
		if string(key) == "class" {
			for _, c := range strings.Fields(string(val)) {
				if c == class {
					return true
				}
			}
		}
		if !more {
			return false
		}
	}
}
