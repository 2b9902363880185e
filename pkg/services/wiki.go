package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type wikiSummary struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

// WikiService answers with the lead of a Wikipedia article, trying each
// language in turn.
type WikiService struct {
	out       Replier
	urlFormat string
	languages []string
	client    *http.Client
}

// NewWikiService creates the service. urlFormat contains one %s for the
// language code and is followed by the escaped title.
func NewWikiService(out Replier, urlFormat string, languages []string) *WikiService {
	if urlFormat == "" {
		urlFormat = "https://%s.wikipedia.org/api/rest_v1/page/summary/"
	}
	if len(languages) == 0 {
		languages = []string{"de", "en"}
	}
	return &WikiService{out: out, urlFormat: urlFormat, languages: languages, client: defaultHTTPClient()}
}

func (s *WikiService) Name() string        { return "wiki" }
func (s *WikiService) Description() string { return "Wikipedia article summary." }

func (s *WikiService) Handle(ctx context.Context, req Request) {
	query := strings.TrimSpace(req.Args)
	if query == "" {
		s.out.SendToNode(ctx, req.From, "Wiki service help: @wiki <term>")
		return
	}

	title := url.PathEscape(strings.ReplaceAll(query, " ", "_"))
	for _, lang := range s.languages {
		var summary wikiSummary
		err := getJSON(ctx, s.client, fmt.Sprintf(s.urlFormat, lang)+title, &summary)
		if err != nil && ctx.Err() != nil {
			break
		}
		if err != nil || summary.Extract == "" {
			continue
		}
		if summary.Type == "disambiguation" {
			s.out.SendToNode(ctx, req.From, "Ambiguous term, please be more specific: "+summary.Title)
			return
		}
		s.out.SendToNode(ctx, req.From, firstSentences(summary.Extract, 2))
		return
	}
	s.out.SendToNode(ctx, req.From, "No Wikipedia article found for that, sorry.")
}

// firstSentences returns the first n sentences of text.
func firstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	count := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				count++
				if count == n {
					return text[:i+1]
				}
			}
		}
	}
	return text
}
