package sources

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ExtractTitle returns the best page title: citation_title or og:title meta
// tags first, then <title>, then the first <h1>.
func ExtractTitle(r io.Reader) string {
	doc, err := html.Parse(r)
	if err != nil {
		return ""
	}

	var meta, title, h1 string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "meta":
				name := strings.ToLower(attr(n, "name") + attr(n, "property"))
				if meta == "" && (name == "citation_title" || name == "og:title") {
					meta = attr(n, "content")
				}
			case "title":
				if title == "" {
					title = textOf(n)
				}
			case "h1":
				if h1 == "" {
					h1 = textOf(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, candidate := range []string{meta, title, h1} {
		if s := collapseSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
