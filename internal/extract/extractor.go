// Package extract turns raw HTML into article records.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-crawler/internal/crawler"
)

var (
	bylinePrefix = regexp.MustCompile(`(?i)^\s*(written\s+)?by[:\s]+`)
	authorSplit  = regexp.MustCompile(`\s*,\s*|\s+and\s+|\s*&\s*`)
)

var publishedSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[itemprop="datePublished"]`, "content"},
	{`[itemprop="datePublished"]`, "datetime"},
	{`meta[name="pubdate"]`, "content"},
	{`meta[name="publishdate"]`, "content"},
	{`meta[name="date"]`, "content"},
	{`time[datetime]`, "datetime"},
}

var authorSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[name="author"]`, "content"},
	{`meta[property="article:author"]`, "content"},
	{`[rel="author"]`, ""},
}

// Extractor pulls main text with readability and metadata with goquery.
type Extractor struct {
	logger *zap.Logger
}

// New returns an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger.Named("extract")}
}

// Extract builds an ArticleRecord from body. It fails with crawler.ErrParse
// when no article text can be found. Malformed markup never panics.
func (e *Extractor) Extract(rawURL string, body []byte) (record crawler.ArticleRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("extraction panicked", zap.String("url", rawURL), zap.Any("panic", r))
			record = crawler.ArticleRecord{}
			err = fmt.Errorf("%w: extraction panic: %v", crawler.ErrParse, r)
		}
	}()

	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return crawler.ArticleRecord{}, fmt.Errorf("%w: parse url: %w", crawler.ErrParse, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return crawler.ArticleRecord{}, fmt.Errorf("%w: empty body", crawler.ErrParse)
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return crawler.ArticleRecord{}, fmt.Errorf("%w: readability: %w", crawler.ErrParse, err)
	}
	text := NormalizeText(article.TextContent)
	if text == "" {
		return crawler.ArticleRecord{}, fmt.Errorf("%w: no article text", crawler.ErrParse)
	}

	record = crawler.ArticleRecord{
		URL:     rawURL,
		Text:    text,
		Title:   strings.TrimSpace(article.Title),
		Authors: []string{},
	}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if docErr != nil {
		e.logger.Debug("metadata parse failed", zap.String("url", rawURL), zap.Error(docErr))
	}

	if record.Title == "" && doc != nil {
		record.Title = firstNonEmpty(
			attr(doc, `meta[property="og:title"]`, "content"),
			strings.TrimSpace(doc.Find("title").First().Text()),
		)
	}

	bylines := []string{article.Byline}
	if doc != nil {
		bylines = append(bylines, metadataAuthors(doc)...)
	}
	record.Authors = SplitAuthors(bylines...)

	if article.PublishedTime != nil && !article.PublishedTime.IsZero() {
		published := article.PublishedTime.UTC()
		record.Published = &published
	} else if doc != nil {
		record.Published = publishedTime(doc)
	}
	return record, nil
}

// NormalizeText collapses runs of whitespace inside each line and drops blank
// lines.
func NormalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}

// SplitAuthors turns byline strings into a de-duplicated author list,
// preserving first-seen order. It never returns nil.
func SplitAuthors(bylines ...string) []string {
	authors := []string{}
	seen := make(map[string]struct{})
	for _, byline := range bylines {
		byline = bylinePrefix.ReplaceAllString(strings.TrimSpace(byline), "")
		for _, name := range authorSplit.Split(byline, -1) {
			name = strings.Join(strings.Fields(name), " ")
			name = bylinePrefix.ReplaceAllString(name, "")
			if name == "" || strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
				continue
			}
			key := strings.ToLower(name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			authors = append(authors, name)
		}
	}
	return authors
}

func metadataAuthors(doc *goquery.Document) []string {
	var out []string
	for _, s := range authorSelectors {
		doc.Find(s.selector).Each(func(_ int, sel *goquery.Selection) {
			var v string
			if s.attr == "" {
				v = sel.Text()
			} else {
				v, _ = sel.Attr(s.attr)
			}
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		})
	}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return
		}
		out = append(out, jsonLDAuthors(payload)...)
	})
	return out
}

// jsonLDAuthors walks a decoded JSON-LD document collecting author names.
func jsonLDAuthors(node any) []string {
	var out []string
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			out = append(out, jsonLDAuthors(item)...)
		}
	case map[string]any:
		if author, ok := v["author"]; ok {
			out = append(out, authorNames(author)...)
		}
		if graph, ok := v["@graph"]; ok {
			out = append(out, jsonLDAuthors(graph)...)
		}
	}
	return out
}

func authorNames(node any) []string {
	switch v := node.(type) {
	case string:
		return []string{v}
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return []string{name}
		}
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, authorNames(item)...)
		}
		return out
	}
	return nil
}

func publishedTime(doc *goquery.Document) *time.Time {
	for _, s := range publishedSelectors {
		raw := attr(doc, s.selector, s.attr)
		if raw == "" {
			continue
		}
		t, err := dateparse.ParseAny(raw)
		if err != nil || t.IsZero() {
			continue
		}
		t = t.UTC()
		return &t
	}
	return nil
}

func attr(doc *goquery.Document, selector, name string) string {
	v, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ crawler.Extractor = (*Extractor)(nil)
