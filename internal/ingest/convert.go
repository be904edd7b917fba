package ingest

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var (
	scriptRe         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLinesRe = regexp.MustCompile(`\n{4,}`)
	frontMatterRe    = regexp.MustCompile(`(?s)\A---\n.*?\n---\n`)
)

// Converter turns source files into plain paragraphs of text.
type Converter struct {
	converter *md.Converter
}

// NewConverter creates a converter with GitHub-flavored Markdown output for
// HTML input.
func NewConverter() *Converter {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Converter{converter: converter}
}

// Convert returns the text of data and a title found in it, if any.
func (c *Converter) Convert(data []byte, format Format) (text, title string, err error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	raw := strings.ReplaceAll(string(data), "\r\n", "\n")

	switch format {
	case FormatHTML:
		title = extractHTMLTitle(raw)
		markdown, err := c.converter.ConvertString(extractMainContent(raw))
		if err != nil {
			return "", "", err
		}
		text = cleanMarkdown(markdown)
		if title == "" {
			title = extractMarkdownTitle(text)
		}
	case FormatMarkdown:
		text = cleanMarkdown(frontMatterRe.ReplaceAllString(raw, ""))
		title = extractMarkdownTitle(text)
	case FormatText, "":
		text = cleanMarkdown(raw)
	default:
		return "", "", fmt.Errorf("unsupported format %q", format)
	}
	return text, title, nil
}

// extractHTMLTitle returns the document <title>.
func extractHTMLTitle(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}

	var title string
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			extract(c)
		}
	}
	extract(doc)
	return title
}

// extractMainContent returns the <main> or <article> element when present,
// otherwise the body with navigation chrome removed.
func extractMainContent(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		content = scriptRe.ReplaceAllString(content, "")
		return styleRe.ReplaceAllString(content, "")
	}

	for _, tag := range []string{"main", "article"} {
		if node := findElement(doc, tag); node != nil {
			return renderNode(node)
		}
	}

	removeElements(doc, map[string]bool{
		"nav": true, "header": true, "footer": true, "aside": true,
		"script": true, "style": true, "noscript": true, "form": true,
	})
	if body := findElement(doc, "body"); body != nil {
		return renderNode(body)
	}
	return content
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func removeElements(n *html.Node, tags map[string]bool) {
	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && tags[node.Data] {
			toRemove = append(toRemove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

// cleanMarkdown collapses runs of blank lines and trims trailing spaces.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractMarkdownTitle returns the first H1 heading.
func extractMarkdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
