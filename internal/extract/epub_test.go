package extract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

const testContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:creator>Jane Doe</dc:creator>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

const testChapter1 = `<html><head><title>Introduction</title></head>
<body><p>First paragraph of the introduction.</p><p>Second paragraph here.</p></body></html>`

const testChapter2 = `<html><head><title>Conclusion</title></head>
<body><p>Closing thoughts.</p></body></html>`

func buildTestEPUB(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip reader: %v", err)
	}
	return zr
}

func TestEPUBFromReader(t *testing.T) {
	zr := buildTestEPUB(t, map[string]string{
		"META-INF/container.xml": testContainerXML,
		"OEBPS/content.opf":      testOPF,
		"OEBPS/ch1.xhtml":        testChapter1,
		"OEBPS/ch2.xhtml":        testChapter2,
	})

	result, err := EPUBFromReader(zr)
	if err != nil {
		t.Fatalf("EPUBFromReader failed: %v", err)
	}

	if result.Title != "Test Book" {
		t.Errorf("title = %q", result.Title)
	}
	if result.Author != "Jane Doe" {
		t.Errorf("author = %q", result.Author)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(result.Pages))
	}
	if result.Pages[0].Chapter != "Introduction" {
		t.Errorf("chapter 1 title = %q", result.Pages[0].Chapter)
	}
	if !strings.Contains(result.Pages[0].Text, "First paragraph of the introduction.") {
		t.Errorf("chapter 1 text missing content: %q", result.Pages[0].Text)
	}
	// Block elements should produce paragraph breaks for the chunker.
	if !strings.Contains(result.Pages[0].Text, "\n\n") {
		t.Error("expected paragraph separation in chapter text")
	}
	if result.Pages[1].PageNumber != 2 {
		t.Errorf("chapter 2 page number = %d", result.Pages[1].PageNumber)
	}
	if result.TotalPages != 2 {
		t.Errorf("total pages = %d", result.TotalPages)
	}
}

func TestEPUBFromReader_MissingContainer(t *testing.T) {
	zr := buildTestEPUB(t, map[string]string{"mimetype": "application/epub+zip"})
	if _, err := EPUBFromReader(zr); err == nil {
		t.Fatal("expected error for missing container.xml")
	}
}

func TestBodyPreview(t *testing.T) {
	pages := []Page{
		{Text: strings.Repeat("a", 600)},
		{Text: "short"},
	}
	preview := BodyPreview(pages, 5000)
	if len(preview) != 500+1+5 {
		t.Errorf("preview length = %d", len(preview))
	}

	capped := BodyPreview(pages, 100)
	if len(capped) != 100 {
		t.Errorf("capped preview length = %d", len(capped))
	}
}
