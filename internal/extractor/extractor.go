package extractor

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// Findings holds the references discovered in one fetched page, already
// resolved against the page's final URL. Pages feed the crawl frontier,
// Images feed the download queue.
type Findings struct {
	Pages  []*url.URL
	Images []*url.URL
}

// imageExtensions marks non-img href targets that still name image
// resources, so direct links to pictures are archived too.
var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".webp": {}, ".bmp": {}, ".svg": {}, ".ico": {}, ".avif": {},
}

// Extract parses an HTML document and returns the page links and image
// references it contains. Non-HTML content yields empty findings, as
// does a body the parser cannot make sense of: extraction is best
// effort and never fails the page that carried it.
func Extract(base *url.URL, contentType string, body []byte) Findings {
	if base == nil || !isHTML(contentType) {
		return Findings{}
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		reader = bytes.NewReader(body)
	}
	doc, err := html.Parse(reader)
	if err != nil {
		return Findings{}
	}

	var findings Findings
	for node := range doc.Descendants() {
		if node.Type != html.ElementNode {
			continue
		}
		switch node.DataAtom {
		case atom.A:
			if u := resolve(base, attr(node, "href")); u != nil {
				if isImagePath(u.Path) {
					findings.Images = append(findings.Images, u)
				} else {
					findings.Pages = append(findings.Pages, u)
				}
			}
		case atom.Img:
			if u := resolve(base, attr(node, "src")); u != nil {
				findings.Images = append(findings.Images, u)
			}
			for _, candidate := range srcsetCandidates(attr(node, "srcset")) {
				if u := resolve(base, candidate); u != nil {
					findings.Images = append(findings.Images, u)
				}
			}
		case atom.Link:
			if !strings.Contains(strings.ToLower(attr(node, "rel")), "icon") {
				continue
			}
			if u := resolve(base, attr(node, "href")); u != nil {
				findings.Images = append(findings.Images, u)
			}
		}
	}
	return findings
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	// An absent Content-Type is treated as HTML; servers that omit it
	// usually serve markup, and the parser tolerates anything else.
	return ct == "" || ct == "text/html" || ct == "application/xhtml+xml"
}

// resolve turns a raw attribute value into an absolute http(s) URL, or
// nil when the reference cannot contribute to the crawl.
func resolve(base *url.URL, raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return nil
	}
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return nil
		}
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	if u.Host == "" {
		return nil
	}
	u.Fragment = ""
	return u
}

func isImagePath(path string) bool {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path[i:])]
	return ok
}

// srcsetCandidates splits a srcset attribute into its URL parts,
// dropping the width/density descriptors.
func srcsetCandidates(srcset string) []string {
	if strings.TrimSpace(srcset) == "" {
		return nil
	}
	var out []string
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(entry)
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

func attr(node *html.Node, name string) string {
	for _, a := range node.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
