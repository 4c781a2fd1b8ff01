package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// hidden elements never contribute visible text
var hidden = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// Extract returns the whitespace-normalized visible text of a document and,
// for HTML, the absolute http(s) targets of its hyperlinks. Relative links
// resolve against <base href> when present, otherwise against base.
func Extract(body []byte, contentType string, base *url.URL) (string, []string, error) {
	if contentType == "text/plain" {
		return strings.Join(strings.Fields(string(body)), " "), nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	for _, n := range doc.Find("body").Nodes {
		writeVisible(&sb, n)
	}
	text := strings.Join(strings.Fields(sb.String()), " ")

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = u
		}
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		u, err := base.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		links = append(links, u.String())
	})

	return text, links, nil
}

func writeVisible(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if hidden[n.DataAtom] {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeVisible(sb, c)
	}
}
