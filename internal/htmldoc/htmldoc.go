// Package htmldoc parses fetched HTML into a document that can be queried by
// tag name and attribute.
//
// Design decision: We build on goquery rather than walking
// golang.org/x/net/html nodes by hand because:
//  1. Tag lookup by name is exactly a CSS type selector
//  2. goquery tolerates the malformed markup common on the web
//  3. The document stays queryable for later rules without re-parsing
package htmldoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// ErrParse is wrapped by every error returned from Parse.
var ErrParse = errors.New("failed to parse HTML document")

// Document is a parsed HTML document.
type Document struct {
	doc *goquery.Document
}

// Tag is a single element of a Document.
type Tag struct {
	sel *goquery.Selection
}

// Parse parses raw HTML content. The character encoding is sniffed from a
// byte order mark or <meta charset> declaration and converted to UTF-8
// before parsing; content without a declaration is treated as UTF-8.
func Parse(content []byte) (*Document, error) {
	enc, name, _ := charset.DetermineEncoding(content, "text/html")

	var r io.Reader = bytes.NewReader(content)
	if name != "utf-8" {
		r = transform.NewReader(r, enc.NewDecoder())
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &Document{doc: doc}, nil
}

// FindAll returns every element with the given tag name in document order.
func (d *Document) FindAll(name string) []Tag {
	sel := d.doc.Find(name)
	tags := make([]Tag, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		tags = append(tags, Tag{sel: s})
	})
	return tags
}

// FindFirst returns the first element with the given tag name.
func (d *Document) FindFirst(name string) (Tag, bool) {
	sel := d.doc.Find(name).First()
	if sel.Length() == 0 {
		return Tag{}, false
	}
	return Tag{sel: sel}, true
}

// Title returns the trimmed text of the first <title> element.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Name returns the tag name of the element.
func (t Tag) Name() string {
	if t.sel == nil {
		return ""
	}
	return goquery.NodeName(t.sel)
}

// Attr returns the value of the named attribute. The boolean is false when
// the attribute is absent, which is distinct from an empty value.
func (t Tag) Attr(name string) (string, bool) {
	if t.sel == nil {
		return "", false
	}
	return t.sel.Attr(name)
}
