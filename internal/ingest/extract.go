package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// ExtractFile extracts plain text from a document on disk. The format is
// chosen by the extension of origName, not of path, because uploads are
// spooled under scratch names.
//
// Partial problems (an undecodable PDF page, for example) are reported
// in the second return value without failing the extraction. Supported
// formats: .txt, .md, .html, .htm, .pdf. Anything else and any document
// that yields no text at all is kernel.ErrUnprocessableDocument.
func ExtractFile(path, origName string) (string, []string, error) {
	ext := strings.ToLower(filepath.Ext(origName))

	var text string
	var partial []string
	var err error
	switch ext {
	case ".txt", ".md":
		text, err = extractPlain(path)
	case ".html", ".htm":
		text, err = extractHTML(path)
	case ".pdf":
		text, partial, err = extractPDF(path)
	default:
		return "", nil, fmt.Errorf("%w: unsupported format %q", kernel.ErrUnprocessableDocument, ext)
	}
	if err != nil {
		return "", nil, err
	}

	text = normalizeWhitespace(text)
	if text == "" {
		return "", nil, fmt.Errorf("%w: no extractable text in %s", kernel.ErrUnprocessableDocument, origName)
	}
	return text, partial, nil
}

func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	// Reject non-UTF-8 uploads here; Postgres would otherwise refuse the
	// chunk INSERT long after extraction reported success.
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid UTF-8", kernel.ErrUnprocessableDocument)
	}
	return string(data), nil
}

// extractHTML walks the parsed tree collecting text nodes, skipping
// script and style subtrees. html.Parse recovers from malformed markup,
// so broken documents degrade instead of failing.
func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening document: %w", err)
	}
	defer func() { _ = f.Close() }()

	root, err := html.Parse(f)
	if err != nil {
		return "", fmt.Errorf("%w: parsing html: %v", kernel.ErrUnprocessableDocument, err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return sb.String(), nil
}

// extractPDF extracts text page by page. A page that fails to decode is
// skipped and recorded as a partial error; the document as a whole only
// fails when it cannot be opened or no page yields text.
func extractPDF(path string) (string, []string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: opening pdf: %v", kernel.ErrUnprocessableDocument, err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	var partial []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			partial = append(partial, fmt.Sprintf("page %d: missing content", i))
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			partial = append(partial, fmt.Sprintf("page %d: %v", i, err))
			continue
		}
		sb.WriteString(content)
		sb.WriteByte('\n')
	}
	return sb.String(), partial, nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
