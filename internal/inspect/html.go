package inspect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// maxHTMLRead caps how much of a recovered page is parsed.
const maxHTMLRead = 8 << 20

// maxListedLinks caps how many links a single finding lists. Recovered
// pages can be link farms; the summary count stays exact regardless.
const maxListedLinks = 50

// emailPattern is deliberately permissive. False positives are
// acceptable when triaging recovered content; strict RFC 5322 parsing
// would miss many real-world addresses.
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// HTMLInspector extracts the title, links, and email addresses from
// recovered HTML documents.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles the malformed HTML typical of carved pages
//  2. Provides a proper DOM-like structure
//  3. More maintainable than complex regex patterns
//
// Links are reported exactly as written in the document. A carved page
// has no origin, so there is no base URL to resolve relative links
// against.
type HTMLInspector struct {
	// maxRead limits the bytes loaded from the artifact.
	maxRead int64
}

// NewHTMLInspector creates a new HTMLInspector.
func NewHTMLInspector() *HTMLInspector {
	return &HTMLInspector{maxRead: maxHTMLRead}
}

// Name returns the inspector name.
func (h *HTMLInspector) Name() string {
	return "html"
}

// Supports reports true for HTML document tags.
func (h *HTMLInspector) Supports(tag string) bool {
	switch strings.ToLower(tag) {
	case "html", "htm":
		return true
	}
	return false
}

// Inspect parses the recovered page and collects its title, link
// targets, and email addresses. The address scan runs over the raw
// bytes so it catches mailto targets, attribute values, and HTML
// comments, not just visible text.
func (h *HTMLInspector) Inspect(ctx context.Context, path string) (*Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, h.maxRead))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var (
		title    string
		links    []string
		seenLink = make(map[string]bool)
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				href := cleanHref(getAttr(n, "href"))
				if href != "" && !seenLink[href] {
					seenLink[href] = true
					links = append(links, href)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	emails := extractEmails(string(data))

	finding := &Finding{
		Inspector: h.Name(),
		Path:      path,
		Details:   make([]Detail, 0),
	}
	if title != "" {
		finding.Details = append(finding.Details, Detail{Key: "title", Value: title})
	}
	for i, link := range links {
		if i >= maxListedLinks {
			break
		}
		finding.Details = append(finding.Details, Detail{Key: "link", Value: link})
	}
	for _, email := range emails {
		finding.Details = append(finding.Details, Detail{
			Key:   "email",
			Value: email,
			Note:  "contact address in page content",
		})
	}

	name := "untitled page"
	if title != "" {
		name = fmt.Sprintf("title %q", title)
	}
	finding.Summary = fmt.Sprintf("%s, %d links, %d email addresses",
		name, len(links), len(emails))
	return finding, nil
}

// cleanHref filters out link targets that carry no destination.
// Mailto targets are dropped from the link list because the raw-byte
// address scan already reports them as emails.
func cleanHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "data:") {
		return ""
	}
	return href
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// extractEmails extracts unique, lowercased email addresses from text.
func extractEmails(text string) []string {
	matches := emailPattern.FindAllString(text, -1)

	seen := make(map[string]bool)
	unique := make([]string, 0)
	for _, email := range matches {
		lower := strings.ToLower(email)
		if !seen[lower] {
			seen[lower] = true
			unique = append(unique, lower)
		}
	}
	return unique
}

// Ensure HTMLInspector implements Inspector.
var _ Inspector = (*HTMLInspector)(nil)
