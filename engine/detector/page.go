package detector

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Page is one parsed snapshot of the problem page.
type Page struct {
	root *html.Node
}

func ParsePage(doc string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse page snapshot: %w", err)
	}
	return &Page{root: root}, nil
}

// elements walks every element node in document order until fn returns false.
func (p *Page) elements(fn func(n *html.Node) bool) {
	if p == nil || p.root == nil {
		return
	}
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && !fn(n) {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(p.root)
}

func (p *Page) find(match func(n *html.Node) bool) *html.Node {
	var found *html.Node
	p.elements(func(n *html.Node) bool {
		if match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func (p *Page) has(match func(n *html.Node) bool) bool {
	return p.find(match) != nil
}

// deepest returns the matching elements none of whose child elements match.
// Text matches bubble up to <body>, so only the innermost hit says where the
// text is rendered.
func (p *Page) deepest(match func(n *html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && !match(n) {
			return false
		}
		childMatched := false
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				childMatched = true
			}
		}
		if n.Type != html.ElementNode {
			return childMatched
		}
		if !childMatched {
			out = append(out, n)
		}
		return true
	}
	if p != nil && p.root != nil {
		walk(p.root)
	}
	return out
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func classList(n *html.Node) string {
	v, _ := attr(n, "class")
	return strings.ToLower(v)
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(classList(n)) {
		if c == class {
			return true
		}
	}
	return false
}

// textContent concatenates the text below n, skipping scripts and styles.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func displayNone(n *html.Node) bool {
	style, ok := attr(n, "style")
	if !ok {
		return false
	}
	compact := strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(compact, "display:none")
}

// hidden reports whether n or one of its ancestors carries the "hidden"
// class or an inline display:none.
func hidden(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hasClass(n, "hidden") || displayNone(n) {
			return true
		}
	}
	return false
}
