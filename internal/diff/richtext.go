package diff

import (
	"strings"

	"golang.org/x/net/html"
)

// Elements that end a visual line in rich text content.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true, "thead": true, "tbody": true,
	"tr": true, "figure": true, "figcaption": true, "section": true, "hr": true,
}

// PasteRestrictedElements are stripped from clipboard content while a rich
// text conflict is being merged by hand; pasting them scrambles the editor.
var PasteRestrictedElements = []string{"table", "ins", "del"}

// splitRichLines breaks markup into lines at block boundaries and explicit
// line breaks, so paragraphs diff as units even when stored on one line.
func splitRichLines(s string) []string {
	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		if line := strings.TrimSpace(cur.String()); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		name, _ := z.TagName()
		tag := string(name)

		switch tt {
		case html.TextToken:
			parts := strings.Split(raw, "\n")
			for i, part := range parts {
				if i > 0 {
					flush()
				}
				cur.WriteString(part)
			}
		case html.StartTagToken:
			if blockElements[tag] {
				flush()
			}
			cur.WriteString(raw)
			if tag == "br" || tag == "hr" {
				flush()
			}
		case html.SelfClosingTagToken:
			cur.WriteString(raw)
			if tag == "br" || blockElements[tag] {
				flush()
			}
		case html.EndTagToken:
			cur.WriteString(raw)
			if blockElements[tag] {
				flush()
			}
		default:
			cur.WriteString(raw)
		}
	}
	flush()

	return lines
}

// textKey reduces a line of markup to its visible content, so two lines that
// differ only in inline markup compare equal.
func textKey(line string) string {
	var parts []string

	z := html.NewTokenizer(strings.NewReader(line))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.TextToken:
			parts = append(parts, string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" {
					parts = append(parts, "[img:"+string(val)+"]")
				}
				if !more {
					break
				}
			}
		}
	}

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
