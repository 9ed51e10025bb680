// Package dom holds the server-side model of a storefront page. The widget
// transport loads the product page markup once per session and every runtime
// component reads and mutates it through Page.
package dom

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is a product page document. All access is serialized; debounced
// reads and popup timers run on their own goroutines.
type Page struct {
	mu  sync.Mutex
	url *url.URL
	doc *goquery.Document
}

// Load parses the page markup served at rawURL.
func Load(rawURL string, r io.Reader) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return &Page{url: u, doc: doc}, nil
}

// LoadString is Load for in-memory markup.
func LoadString(rawURL, html string) (*Page, error) {
	return Load(rawURL, strings.NewReader(html))
}

// URL returns a copy of the page URL.
func (p *Page) URL() url.URL {
	return *p.url
}

// With runs fn while holding the page lock.
func (p *Page) With(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

func (p *Page) Exists(sel string) bool {
	return p.Count(sel) > 0
}

func (p *Page) Count(sel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(sel).Length()
}

// Value reads the current value of the first element matching sel. Select
// elements report their selected option (or the first one), radio groups
// report the checked member, textareas report their text.
func (p *Page) Value(sel string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return valueOf(p.doc.Find(sel))
}

// SetValue applies a shopper edit to every element matching sel.
func (p *Page) SetValue(sel, value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.doc.Find(sel)
	if s.Length() == 0 {
		return false
	}
	setValue(s, value)
	return true
}

func (p *Page) Text(sel string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.doc.Find(sel).First().Text())
}

func (p *Page) SetText(sel, text string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.doc.Find(sel)
	s.SetText(text)
	return s.Length()
}

func (p *Page) Attr(sel, name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(sel).First().Attr(name)
}

func (p *Page) SetAttr(sel, name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(sel).SetAttr(name, value)
}

func (p *Page) RemoveAttr(sel, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(sel).RemoveAttr(name)
}

func (p *Page) AddClass(sel, class string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(sel).AddClass(class)
}

func (p *Page) RemoveClass(sel, class string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(sel).RemoveClass(class)
}

// Style returns one inline style property of the first match.
func (p *Page) Style(sel, prop string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, _ := p.doc.Find(sel).First().Attr("style")
	return parseStyle(raw)[strings.ToLower(prop)]
}

// SetStyle sets one inline style property on every match, keeping the rest.
func (p *Page) SetStyle(sel, prop, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("style")
		styles := parseStyle(raw)
		styles[strings.ToLower(prop)] = value
		s.SetAttr("style", formatStyle(styles))
	})
}

// InsertAfter places html right after the first element matching anchor.
// It reports false when there is no anchor.
func (p *Page) InsertAfter(anchor, markup string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.doc.Find(anchor).First()
	if s.Length() == 0 {
		return false
	}
	s.AfterNodes(fragment(markup)...)
	return true
}

func (p *Page) AppendToBody(markup string) {
	p.AppendTo("body", markup)
}

// AppendTo appends html inside the first element matching sel, falling back
// to the body.
func (p *Page) AppendTo(sel, markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := p.doc.Find(sel).First()
	if target.Length() == 0 {
		target = p.doc.Find("body")
	}
	if target.Length() == 0 {
		target = p.doc.Selection
	}
	target.AppendNodes(fragment(markup)...)
}

// fragment parses markup as body content. Parsing against the insertion
// point would drop nested forms, and the widget lives inside the theme's
// add-to-cart form.
func fragment(markup string) []*html.Node {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil
	}
	return nodes
}

func (p *Page) Remove(sel string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(sel).Remove()
}

// OuterHTML renders the first element matching sel.
func (p *Page) OuterHTML(sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.doc.Find(sel).First()
	if s.Length() == 0 {
		return "", nil
	}
	return goquery.OuterHtml(s)
}

func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Html()
}

func valueOf(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	first := s.First()
	switch goquery.NodeName(first) {
	case "select":
		opt := first.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = first.Find("option").First()
		}
		if v, ok := opt.Attr("value"); ok {
			return v
		}
		return strings.TrimSpace(opt.Text())
	case "textarea":
		return first.Text()
	case "input":
		typ := strings.ToLower(first.AttrOr("type", "text"))
		if typ == "radio" || typ == "checkbox" {
			checked := s.FilterFunction(func(_ int, el *goquery.Selection) bool {
				_, ok := el.Attr("checked")
				return ok
			}).First()
			if checked.Length() == 0 {
				return ""
			}
			return checked.AttrOr("value", "on")
		}
	}
	return first.AttrOr("value", "")
}

func setValue(s *goquery.Selection, value string) {
	s.Each(func(_ int, el *goquery.Selection) {
		switch goquery.NodeName(el) {
		case "select":
			el.Find("option").RemoveAttr("selected")
			el.Find("option").Each(func(_ int, opt *goquery.Selection) {
				v, ok := opt.Attr("value")
				if !ok {
					v = strings.TrimSpace(opt.Text())
				}
				if v == value {
					opt.SetAttr("selected", "selected")
				}
			})
		case "textarea":
			el.SetText(value)
		case "input":
			typ := strings.ToLower(el.AttrOr("type", "text"))
			if typ == "radio" || typ == "checkbox" {
				if el.AttrOr("value", "on") == value || (typ == "checkbox" && value == "true") {
					el.SetAttr("checked", "checked")
				} else {
					el.RemoveAttr("checked")
				}
				return
			}
			el.SetAttr("value", value)
		default:
			el.SetAttr("value", value)
		}
	})
}

func parseStyle(raw string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		out[name] = strings.TrimSpace(value)
	}
	return out
}

func formatStyle(styles map[string]string) string {
	keys := make([]string, 0, len(styles))
	for k := range styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(styles[k])
		b.WriteString(";")
	}
	return b.String()
}
