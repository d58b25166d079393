package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/verso-reads/verso-rag/internal/models"
)

func assertPages(t *testing.T, got []models.PageText, want ...models.PageText) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d pages %+v, want %d %+v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("page %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func page(index int, text string) models.PageText {
	return models.PageText{PageIndex: index, Text: text}
}

func TestExtractPagesBytes_plain(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractPagesBytes([]byte("Hello   world\nLine 2  "), ".txt")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "Hello world Line 2"))
}

func TestExtractPagesBytes_plainFormFeedPages(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractPagesBytes([]byte("first page\f\f  third page "), ".md")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "first page"), page(3, "third page"))
}

func TestExtractPagesBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractPagesBytes([]byte("hello\x80world"), ".rst")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "hello�world"))
}

func TestExtractPagesBytes_unknownExtension(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractPagesBytes([]byte("raw content"), ".xyz")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "raw content"))
}

func TestExtractPagesBytes_whitespaceOnly(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractPagesBytes([]byte(" \n\t \f  "), ".txt")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no pages, got %+v", got)
	}
}

func TestExtractPagesBytes_excelSheetsArePages(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	if _, err := f.NewSheet("Notes"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("Notes", "A1", "Second sheet")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	e := NewExtractor()
	got, err := e.ExtractPagesBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "Title Value 1 Value 2"), page(2, "Second sheet"))
}

func TestExtractPages_plainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "document.txt")
	if err := os.WriteFile(path, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().ExtractPages(path)
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	assertPages(t, got, page(1, "File content"))
}

func TestExtractPages_nonexistent(t *testing.T) {
	if _, err := NewExtractor().ExtractPages("/nonexistent/path/document.pdf"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestExtractPagesBytes_invalidPDF(t *testing.T) {
	_, err := NewExtractor().ExtractPagesBytes([]byte("definitely not a pdf"), ".pdf")
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// minimalDocx returns a .docx zip whose word/document.xml holds body.
func minimalDocx(body string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func para(text string) string {
	return `<w:p w:rsidR="00AB"><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

func TestExtractPagesBytes_docx(t *testing.T) {
	got, err := NewExtractor().ExtractPagesBytes(minimalDocx(para("Readable docx content")), ".docx")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "Readable docx content"))
}

func TestExtractPagesBytes_docxPageBreaks(t *testing.T) {
	body := para("Chapter one") + `<w:p><w:r><w:br w:type="page"/></w:r></w:p>` +
		para("Chapter two &amp; more") + `<w:p><w:r><w:lastRenderedPageBreak/><w:t>Chapter three</w:t></w:r></w:p>`
	got, err := NewExtractor().ExtractPagesBytes(minimalDocx(body), ".docx")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "Chapter one"), page(2, "Chapter two & more"), page(3, "Chapter three"))
}

func TestExtractPagesBytes_docxContentTypes(t *testing.T) {
	for _, override := range []string{
		`<Override PartName="/word/document2.xml" ContentType="` + docxMainContentType + `"/>`,
		`<Override ContentType="` + docxMainContentType + `" PartName="/word/document2.xml"/>`,
	} {
		var buf bytes.Buffer
		w := zip.NewWriter(&buf)
		ct, _ := w.Create("[Content_Types].xml")
		_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` + override + `</Types>`))
		fw, _ := w.Create("word/document2.xml")
		_, _ = fw.Write([]byte(`<w:document ` + wordNS + `><w:body>` + para("Content from document2") + `</w:body></w:document>`))
		_ = w.Close()

		got, err := NewExtractor().ExtractPagesBytes(buf.Bytes(), ".docx")
		if err != nil {
			t.Fatalf("ExtractPagesBytes: %v", err)
		}
		assertPages(t, got, page(1, "Content from document2"))
	}
}

func TestExtractPagesBytes_docxMissingPart(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("docProps/core.xml")
	_ = w.Close()
	_, err := NewExtractor().ExtractPagesBytes(buf.Bytes(), ".docx")
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
}

func slideXML(text string) string {
	return `<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func TestExtractPagesBytes_pptxOrderedBySlideNumber(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	// Zip order differs from slide order on purpose.
	for _, s := range []struct{ name, text string }{
		{"ppt/slides/slide10.xml", "Tenth"},
		{"ppt/slides/slide2.xml", "Second"},
		{"ppt/slides/slide1.xml", "First"},
		{"ppt/slides/_rels/slide1.xml.rels", "ignored"},
	} {
		fw, _ := w.Create(s.name)
		_, _ = fw.Write([]byte(slideXML(s.text)))
	}
	_ = w.Close()

	got, err := NewExtractor().ExtractPagesBytes(buf.Bytes(), ".pptx")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "First"), page(2, "Second"), page(10, "Tenth"))
}

func TestExtractPagesBytes_pptxNotZip(t *testing.T) {
	_, err := NewExtractor().ExtractPagesBytes([]byte("not a zip"), ".pptx")
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
}

// minimalODF returns an OpenDocument zip with the given content.xml.
func minimalODF(contentXML string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("content.xml")
	_, _ = fw.Write([]byte(contentXML))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtractPagesBytes_odpSlides(t *testing.T) {
	contentXML := `<office:document><office:body><office:presentation>` +
		`<draw:page draw:name="one"><text:h>Slide title</text:h><text:p>Body text</text:p></draw:page>` +
		`<draw:page draw:name="two"><draw:text-box><text:p><text:span>Second</text:span></text:p></draw:text-box></draw:page>` +
		`</office:presentation></office:body></office:document>`
	got, err := NewExtractor().ExtractPagesBytes(minimalODF(contentXML), ".odp")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "Slide title Body text"), page(2, "Second"))
}

func TestExtractPagesBytes_odsSheets(t *testing.T) {
	contentXML := `<office:document><office:body><office:spreadsheet>` +
		`<table:table table:name="A"><table:table-row><table:table-cell><text:p>Cell A</text:p></table:table-cell></table:table-row></table:table>` +
		`<table:table table:name="B"><table:table-row><table:table-cell><text:p>Cell B</text:p></table:table-cell></table:table-row></table:table>` +
		`</office:spreadsheet></office:body></office:document>`
	got, err := NewExtractor().ExtractPagesBytes(minimalODF(contentXML), ".ods")
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	assertPages(t, got, page(1, "Cell A"), page(2, "Cell B"))
}

func TestExtractPagesBytes_odfContentNotFound(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("other.xml")
	_ = w.Close()
	for _, ext := range []string{".odp", ".ods"} {
		if _, err := NewExtractor().ExtractPagesBytes(buf.Bytes(), ext); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("%s: expected ErrInvalidDocument, got %v", ext, err)
		}
	}
}

func TestText(t *testing.T) {
	got := Text([]models.PageText{page(1, "a"), page(2, "b")})
	if got != "a\n\nb" {
		t.Errorf("Text = %q", got)
	}
}
