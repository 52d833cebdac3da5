// Package output renders batch results and hands records to archive sinks.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/JakeFAU/article-crawler/internal/crawler"
)

// JSONWriter writes a batch result as one JSON array, with null for every
// URL that produced no article.
type JSONWriter struct {
	Pretty bool
}

// Write encodes records to w followed by a newline.
func (jw JSONWriter) Write(w io.Writer, records []*crawler.ArticleRecord) error {
	if records == nil {
		records = []*crawler.ArticleRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if jw.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}
