package message

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"golang.org/x/net/html"
)

const (
	// SnippetMaxLength is the maximum snippet length in characters.
	SnippetMaxLength = 500

	maxPartSize = 64 << 10
	maxDepth    = 16
)

var (
	htmlHead     = regexp.MustCompile(`(?s)<head.*</head>`)
	htmlTag      = regexp.MustCompile(`(?s)<[^>]+>`)
	punctuation  = regexp.MustCompile("[~`!@#$%^&*()_\\-+={\\[}\\]|\\\\:;\"'<,>.?/]{2,}")
	whitespaceRe = regexp.MustCompile(`[\s\x{A0}]+`)
)

// Snippet extracts a short plain-text preview from a raw RFC 822 message.
// Plain-text and HTML parts are visited depth-first, including attached
// messages, until enough text has been collected. A truncated or malformed
// message yields whatever text could be read before the damage.
func Snippet(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	// Unknown charsets and encodings are reported alongside a usable entity.
	e, _ := gomessage.Read(bytes.NewReader(raw))
	if e == nil {
		return ""
	}

	var sb strings.Builder
	collect(e, &sb, 0)
	return Clean(sb.String())
}

// collect appends the text of e and its descendants to sb. It stops once
// sb holds SnippetMaxLength bytes or more.
func collect(e *gomessage.Entity, sb *strings.Builder, depth int) {
	if depth > maxDepth || sb.Len() >= SnippetMaxLength {
		return
	}

	mediaType, _, err := e.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	switch {
	case mediaType == "text/plain":
		sb.WriteByte(' ')
		sb.WriteString(readText(e.Body))
	case mediaType == "text/html":
		sb.WriteByte(' ')
		sb.WriteString(html.UnescapeString(readText(e.Body)))
	case strings.HasPrefix(mediaType, "multipart/"):
		mr := e.MultipartReader()
		if mr == nil {
			return
		}
		for sb.Len() < SnippetMaxLength {
			part, err := mr.NextPart()
			if err != nil {
				return
			}
			collect(part, sb, depth+1)
		}
	case mediaType == "message/rfc822":
		inner, _ := gomessage.Read(e.Body)
		if inner != nil {
			collect(inner, sb, depth+1)
		}
	}
}

// readText reads a decoded part body, keeping whatever was read before an
// error.
func readText(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxPartSize))
	return strings.ToValidUTF8(string(b), "")
}

// Clean applies the snippet cleanup passes in order: drop the HTML head,
// drop tags, replace runs of punctuation with a space, collapse whitespace,
// trim, and cap the length at SnippetMaxLength characters.
func Clean(s string) string {
	s = htmlHead.ReplaceAllString(s, "")
	s = htmlTag.ReplaceAllString(s, "")
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncate(s, SnippetMaxLength)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimSpace(s[:pos])
		}
		i++
	}
	return s
}
