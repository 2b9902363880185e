package services

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const searchHelp = "Search service help: send a message in the format:\n" +
	"@search <query>\nExample:\n@search this is a test"

// SearchResult is one hit of the search page.
type SearchResult struct {
	Title string
	URL   string
}

// SearchService searches DuckDuckGo and summarizes the first results.
type SearchService struct {
	out          Replier
	searchURL    string
	maxResults   int
	summaryWords int
	client       *http.Client
	logger       *slog.Logger
}

func NewSearchService(out Replier, searchURL string, maxResults, summaryWords int, logger *slog.Logger) *SearchService {
	if searchURL == "" {
		searchURL = "https://html.duckduckgo.com/html/"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	if summaryWords <= 0 {
		summaryWords = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{
		out:          out,
		searchURL:    searchURL,
		maxResults:   maxResults,
		summaryWords: summaryWords,
		client:       defaultHTTPClient(),
		logger:       logger.With("component", "search"),
	}
}

func (s *SearchService) Name() string        { return "search" }
func (s *SearchService) Description() string { return "Web search with short page summaries." }

func (s *SearchService) Handle(ctx context.Context, req Request) {
	query := strings.TrimSpace(req.Args)
	if query == "" {
		s.out.SendToNode(ctx, req.From, searchHelp)
		return
	}

	results, err := s.Search(ctx, query)
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		s.out.SendToNode(ctx, req.From, "Error during search: "+err.Error())
		return
	}
	s.logger.Info("search results", "query", query, "count", len(results))

	var answers []string
	for _, r := range results {
		summary, err := s.summarize(ctx, r.URL)
		if err != nil {
			s.logger.Warn("error summarizing result", "title", r.Title, "error", err)
			continue
		}
		answers = append(answers, r.Title+"\n"+summary)
	}
	if len(answers) == 0 {
		answers = []string{"No search results found."}
	}
	s.out.SendToNode(ctx, req.From, strings.Join(answers, "\n\n"))
}

// Search returns up to maxResults hits for query.
func (s *SearchService) Search(ctx context.Context, query string) ([]SearchResult, error) {
	u, err := url.Parse(s.searchURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	body, err := get(ctx, s.client, u.String())
	if err != nil {
		return nil, err
	}
	defer body.Close()
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	doc.Find(".result__a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		results = append(results, SearchResult{
			Title: strings.TrimSpace(a.Text()),
			URL:   unwrapRedirect(href),
		})
		return len(results) < s.maxResults
	})
	return results, nil
}

// unwrapRedirect resolves DuckDuckGo's //duckduckgo.com/l/?uddg=<url> links.
func unwrapRedirect(href string) string {
	if !strings.Contains(href, "uddg=") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func (s *SearchService) summarize(ctx context.Context, pageURL string) (string, error) {
	body, err := get(ctx, s.client, pageURL)
	if err != nil {
		return "", err
	}
	defer body.Close()
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", err
	}

	var words []string
	doc.Find("p, div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		words = append(words, strings.Fields(sel.Text())...)
		return len(words) <= s.summaryWords
	})
	if len(words) > s.summaryWords {
		return strings.Join(words[:s.summaryWords], " ") + "...", nil
	}
	return strings.Join(words, " "), nil
}
