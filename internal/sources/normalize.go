package sources

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// SyntheticScheme prefixes locators generated for items that carry no URL.
const SyntheticScheme = "urn:rss:"

// SyntheticURL derives a stable locator from an entry's title and raw
// published string.
func SyntheticURL(title, published string) string {
	sum := md5.Sum([]byte(title + published))
	return SyntheticScheme + hex.EncodeToString(sum[:])
}

// StripHTML reduces markup to plain text: tags dropped, entities decoded and
// whitespace collapsed to single spaces.
func StripHTML(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return collapseSpaces(markup)
	}
	doc.Find("script, style").Remove()

	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			name := goquery.NodeName(node)
			if name == "#text" {
				b.WriteString(node.Text())
				return
			}
			// Inline elements such as <a>#<span>tag</span></a> stay glued.
			block := blockElements[name]
			if block {
				b.WriteByte(' ')
			}
			walk(node)
			if block {
				b.WriteByte(' ')
			}
		})
	}
	walk(doc.Selection)
	return collapseSpaces(b.String())
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "hr": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true, "tr": true, "td": true, "th": true,
	"section": true, "article": true, "header": true, "footer": true,
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseTimestamp parses an RFC 3339 timestamp, returning nil when s is empty
// or malformed.
func ParseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// UnixTime converts epoch seconds, returning nil for zero.
func UnixTime(sec float64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(int64(sec), 0).UTC()
	return &t
}

var (
	positiveWords = []string{"good", "great", "excellent", "love", "positive", "up"}
	negativeWords = []string{"bad", "terrible", "hate", "negative", "down"}
)

// HeuristicSentiment scores text in [-1, 1] by counting which words of two
// fixed lists appear in it. It is a placeholder, not sentiment analysis.
func HeuristicSentiment(text string) float64 {
	if text == "" {
		return 0
	}
	content := strings.ToLower(text)

	score := 0
	for _, word := range positiveWords {
		if strings.Contains(content, word) {
			score++
		}
	}
	for _, word := range negativeWords {
		if strings.Contains(content, word) {
			score--
		}
	}

	s := float64(score) / 3.0
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func ptr[T any](v T) *T { return &v }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
