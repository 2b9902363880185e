package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const translateHelp = "Translate service help: @translate <target language code> <text>"

// TranslateService translates text with the public Google Translate
// endpoint.
type TranslateService struct {
	out      Replier
	endpoint string
	client   *http.Client
}

func NewTranslateService(out Replier, endpoint string) *TranslateService {
	if endpoint == "" {
		endpoint = "https://translate.googleapis.com/translate_a/single"
	}
	return &TranslateService{out: out, endpoint: endpoint, client: defaultHTTPClient()}
}

func (s *TranslateService) Name() string        { return "translate" }
func (s *TranslateService) Description() string { return "Translates text into another language." }

func (s *TranslateService) Handle(ctx context.Context, req Request) {
	parts := strings.SplitN(strings.TrimSpace(req.Args), " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		s.out.SendToNode(ctx, req.From, translateHelp)
		return
	}
	lang, text := parts[0], strings.TrimSpace(parts[1])

	translated, err := s.Translate(ctx, lang, text)
	if err != nil {
		s.out.SendToNode(ctx, req.From, "Error: "+err.Error())
		return
	}
	s.out.SendToNode(ctx, req.From, translated)
}

// Translate translates text into lang, detecting the source language.
func (s *TranslateService) Translate(ctx context.Context, lang, text string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", lang)
	q.Set("dt", "t")
	q.Set("q", text)

	// The reply is a nested array: [[["translated","source",...],...],...].
	var raw []json.RawMessage
	if err := getJSON(ctx, s.client, s.endpoint+"?"+q.Encode(), &raw); err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty translation response")
	}
	var segments [][]any
	if err := json.Unmarshal(raw[0], &segments); err != nil {
		return "", fmt.Errorf("unexpected translation response: %w", err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) > 0 {
			if part, ok := seg[0].(string); ok {
				b.WriteString(part)
			}
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty translation response")
	}
	return b.String(), nil
}
