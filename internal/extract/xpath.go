package extract

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// xpathLiteral quotes s for embedding into an XPath expression. Strings
// containing both quote characters are rebuilt with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}

	var b strings.Builder
	b.WriteString("concat(")
	for i, part := range strings.Split(s, `"`) {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + part + `"`)
	}
	b.WriteString(")")
	return b.String()
}

// FirstString evaluates an XPath query and returns the text of the first
// matched node, or "" when nothing matches. An invalid expression is
// returned as an error; an empty match set is not.
func FirstString(root *html.Node, query string) (string, error) {
	node, err := htmlquery.Query(root, query)
	if err != nil {
		return "", err
	}
	if node == nil {
		return "", nil
	}
	return strings.TrimSpace(htmlquery.InnerText(node)), nil
}

// AllStrings evaluates an XPath query and returns the text of every matched
// node, skipping empty values.
func AllStrings(root *html.Node, query string) ([]string, error) {
	nodes, err := htmlquery.QueryAll(root, query)
	if err != nil {
		return nil, err
	}

	var values []string
	for _, node := range nodes {
		if v := strings.TrimSpace(htmlquery.InnerText(node)); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}
