package services

import (
	"context"
	"strings"

	"github.com/mmcdole/gofeed"
)

// NewsService posts the latest headlines of an RSS or Atom feed.
type NewsService struct {
	out      Replier
	feedURL  string
	maxItems int
	parser   *gofeed.Parser
}

func NewNewsService(out Replier, feedURL string, maxItems int) *NewsService {
	if maxItems <= 0 {
		maxItems = 10
	}
	parser := gofeed.NewParser()
	parser.Client = defaultHTTPClient()
	parser.UserAgent = userAgent
	return &NewsService{out: out, feedURL: feedURL, maxItems: maxItems, parser: parser}
}

func (s *NewsService) Name() string        { return "news" }
func (s *NewsService) Description() string { return "Latest news headlines." }

func (s *NewsService) Handle(ctx context.Context, req Request) {
	feed, err := s.parser.ParseURLWithContext(s.feedURL, ctx)
	if err != nil {
		s.out.SendToNode(ctx, req.From, "Error loading the news: "+err.Error())
		return
	}

	var lines []string
	for _, item := range feed.Items {
		if len(lines) == s.maxItems {
			break
		}
		if title := strings.TrimSpace(item.Title); title != "" {
			lines = append(lines, "- "+title)
		}
	}
	if len(lines) == 0 {
		s.out.SendToNode(ctx, req.From, "No current news found.")
		return
	}
	s.out.SendToNode(ctx, req.From, "Latest news:\n"+strings.Join(lines, "\n"))
}
