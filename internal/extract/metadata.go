package extract

import (
	"encoding/json"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html"

	"github.com/trombik/rokujo-collector/internal/types"
)

// Metadata holds the optional per-article fields scraped from a page.
type Metadata struct {
	Title         string
	Author        string
	Description   string
	Kind          string
	SiteName      string
	PublishedTime string
	ModifiedTime  string
	Lang          string
}

// metaProperty returns the content of <meta property="name">.
func metaProperty(root *html.Node, name string) string {
	v, _ := FirstString(root, `//meta[@property=`+xpathLiteral(name)+`]/@content`)
	return v
}

// metaName returns the content of <meta name="name">.
func metaName(root *html.Node, name string) string {
	v, _ := FirstString(root, `//meta[@name=`+xpathLiteral(name)+`]/@content`)
	return v
}

// jsonLD captures the JSON-LD fields the spiders care about. Author may be
// an object or a list of objects; both are handled by unmarshalJSONLD.
type jsonLD struct {
	Author        string
	DatePublished string
	DateModified  string
}

// parseJSONLD extracts and parses the first JSON-LD script block.
// A missing or malformed block yields the zero value, never an error.
func parseJSONLD(root *html.Node) jsonLD {
	raw, _ := FirstString(root, `//script[@type="application/ld+json"]/text()`)
	if raw == "" {
		return jsonLD{}
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return jsonLD{}
	}
	// When the block is a list, use the first entry and ignore others.
	if list, ok := data.([]any); ok {
		if len(list) == 0 {
			return jsonLD{}
		}
		data = list[0]
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return jsonLD{}
	}

	var ld jsonLD
	switch author := obj["author"].(type) {
	case map[string]any:
		ld.Author, _ = author["name"].(string)
	case []any:
		if len(author) > 0 {
			if first, ok := author[0].(map[string]any); ok {
				ld.Author, _ = first["name"].(string)
			}
		}
	}
	ld.DatePublished, _ = obj["datePublished"].(string)
	ld.DateModified, _ = obj["dateModified"].(string)
	return ld
}

// normalizeTime parses a timestamp in any common format and re-renders it
// as RFC 3339. Unparseable input yields "".
func normalizeTime(s string) string {
	if s == "" {
		return ""
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// detectLang guesses the two-letter language code of text. When detection
// is unreliable it falls back to the document's lang attribute, then to the
// "und" sentinel. Detection failure is never an error.
func detectLang(text string, root *html.Node) string {
	info := whatlanggo.Detect(text)
	if code := info.Lang.Iso6391(); code != "" && info.IsReliable() {
		return code
	}

	if root != nil {
		if attr, _ := FirstString(root, "/html/@lang"); attr != "" {
			// "ja-JP" carries a region subtag; keep the primary subtag only
			if len(attr) >= 2 {
				return attr[:2]
			}
		}
	}
	return types.LangUndetermined
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
