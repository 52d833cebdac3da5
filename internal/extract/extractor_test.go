package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-crawler/internal/crawler"
)

const articleHTML = `<!doctype html>
<html>
<head>
  <title>Rates Hold Steady</title>
  <meta name="author" content="By Jane Doe and John Smith">
  <meta property="article:published_time" content="2024-03-05T10:00:00Z">
  <script type="application/ld+json">{"@type":"NewsArticle","author":[{"@type":"Person","name":"Jane Doe"}]}</script>
</head>
<body>
  <nav><a href="/">Home</a> <a href="/world">World</a></nav>
  <article>
    <h1>Rates Hold Steady</h1>
    <p>The central bank left its benchmark rate unchanged on Tuesday, citing a
    cooling labour market and easing price pressure across most categories of goods.</p>
    <p>Officials said they would continue to watch incoming data closely and were
    prepared to adjust policy should inflation fail to return toward the target.</p>
    <p>Markets had largely priced in the decision, and bond yields were little
    changed in afternoon trading after the announcement was published.</p>
  </article>
  <footer>Copyright</footer>
</body>
</html>`

func TestExtractArticle(t *testing.T) {
	record, err := New(nil).Extract("https://news.example/rates", []byte(articleHTML))
	require.NoError(t, err)

	assert.Equal(t, "https://news.example/rates", record.URL)
	assert.Equal(t, "Rates Hold Steady", record.Title)
	assert.Contains(t, record.Text, "benchmark rate unchanged")
	assert.NotContains(t, record.Text, "  ")
	assert.Equal(t, []string{"Jane Doe", "John Smith"}, record.Authors)
	require.NotNil(t, record.Published)
	assert.True(t, record.Published.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))
}

func TestExtractEmptyBodyIsParseError(t *testing.T) {
	for _, body := range []string{"", "   ", "<html><body></body></html>"} {
		_, err := New(nil).Extract("https://news.example/empty", []byte(body))
		require.ErrorIs(t, err, crawler.ErrParse, "body %q", body)
	}
}

func TestExtractMalformedMarkupDoesNotPanic(t *testing.T) {
	body := "<html><body><p>Unclosed <b>tags <i>everywhere <div>" + strings.Repeat("text ", 200) + "</span></td>"
	assert.NotPanics(t, func() {
		_, _ = New(nil).Extract("https://news.example/broken", []byte(body))
	})
}

func TestExtractWithoutMetadata(t *testing.T) {
	body := `<html><body><article><p>` + strings.Repeat("Plain paragraph text without any metadata. ", 20) + `</p></article></body></html>`
	record, err := New(nil).Extract("https://news.example/plain", []byte(body))
	require.NoError(t, err)
	assert.NotNil(t, record.Authors)
	assert.Empty(t, record.Authors)
	assert.Nil(t, record.Published)
}

func TestExtractRejectsBadURL(t *testing.T) {
	_, err := New(nil).Extract("://bad", []byte(articleHTML))
	assert.ErrorIs(t, err, crawler.ErrParse)
}

func TestSplitAuthors(t *testing.T) {
	tests := []struct {
		name    string
		bylines []string
		want    []string
	}{
		{"empty", nil, []string{}},
		{"by prefix", []string{"By Jane Doe"}, []string{"Jane Doe"}},
		{"comma and and", []string{"Jane Doe, John Smith and Ana Li"}, []string{"Jane Doe", "John Smith", "Ana Li"}},
		{"dedupe across sources", []string{"Jane Doe", "jane doe", " John  Smith "}, []string{"Jane Doe", "John Smith"}},
		{"drops urls", []string{"https://news.example/staff/jane"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitAuthors(tt.bylines...))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	in := "  First   line \n\n\n\tSecond\tline  \n   \n"
	assert.Equal(t, "First line\nSecond line", NormalizeText(in))
}

func TestJSONLDAuthors(t *testing.T) {
	doc := map[string]any{
		"@graph": []any{
			map[string]any{"author": "Ana Li"},
			map[string]any{"author": []any{map[string]any{"name": "Bo Chen"}, "Cy Diaz"}},
		},
	}
	assert.Equal(t, []string{"Ana Li", "Bo Chen", "Cy Diaz"}, jsonLDAuthors(doc))
}
