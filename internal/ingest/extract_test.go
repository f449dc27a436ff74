package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestExtractFile_PlainText(t *testing.T) {
	path := writeTemp(t, "doc.txt", "Hello world.\nSecond   line.")

	text, _, err := ExtractFile(path, "doc.txt")
	if err != nil {
		t.Fatalf("ExtractFile() = %v", err)
	}
	if text != "Hello world. Second line." {
		t.Errorf("text = %q", text)
	}
}

func TestExtractFile_Markdown(t *testing.T) {
	path := writeTemp(t, "doc.md", "# Title\n\nBody text here.")

	text, _, err := ExtractFile(path, "doc.md")
	if err != nil {
		t.Fatalf("ExtractFile() = %v", err)
	}
	if !strings.Contains(text, "Body text here.") {
		t.Errorf("text = %q", text)
	}
}

func TestExtractFile_HTML(t *testing.T) {
	page := `<html><head><title>T</title><style>body{color:red}</style></head>
<body><script>var x = "ignore me";</script><p>Visible paragraph.</p></body></html>`
	path := writeTemp(t, "page.html", page)

	text, _, err := ExtractFile(path, "page.html")
	if err != nil {
		t.Fatalf("ExtractFile() = %v", err)
	}
	if !strings.Contains(text, "Visible paragraph.") {
		t.Errorf("visible text missing: %q", text)
	}
	if strings.Contains(text, "ignore me") || strings.Contains(text, "color:red") {
		t.Errorf("script/style content leaked: %q", text)
	}
}

func TestExtractFile_ExtensionFromOrigName(t *testing.T) {
	// Uploads are spooled with scratch names; the original filename
	// decides the format.
	path := writeTemp(t, "upload-123.tmp", "<p>From html.</p>")

	text, _, err := ExtractFile(path, "report.html")
	if err != nil {
		t.Fatalf("ExtractFile() = %v", err)
	}
	if !strings.Contains(text, "From html.") {
		t.Errorf("text = %q", text)
	}
}

func TestExtractFile_RejectsInvalidUTF8(t *testing.T) {
	// Latin-1 encoded "café" is not valid UTF-8.
	path := writeTemp(t, "latin1.txt", "caf\xe9 notes.")

	_, _, err := ExtractFile(path, "latin1.txt")
	if !errors.Is(err, kernel.ErrUnprocessableDocument) {
		t.Fatalf("ExtractFile() = %v, want ErrUnprocessableDocument", err)
	}
}

func TestExtractFile_UnsupportedFormat(t *testing.T) {
	path := writeTemp(t, "image.png", "binary-ish")

	_, _, err := ExtractFile(path, "image.png")
	if !errors.Is(err, kernel.ErrUnprocessableDocument) {
		t.Fatalf("ExtractFile() = %v, want ErrUnprocessableDocument", err)
	}
}

func TestExtractFile_EmptyDocument(t *testing.T) {
	path := writeTemp(t, "empty.txt", "   \n\t ")

	_, _, err := ExtractFile(path, "empty.txt")
	if !errors.Is(err, kernel.ErrUnprocessableDocument) {
		t.Fatalf("ExtractFile() = %v, want ErrUnprocessableDocument", err)
	}
}

func TestExtractFile_CorruptPDF(t *testing.T) {
	path := writeTemp(t, "bad.pdf", "this is not a pdf")

	_, _, err := ExtractFile(path, "bad.pdf")
	if !errors.Is(err, kernel.ErrUnprocessableDocument) {
		t.Fatalf("ExtractFile() = %v, want ErrUnprocessableDocument", err)
	}
}
