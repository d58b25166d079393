// Package e2e provides end-to-end tests; this file builds minimal multi-page files for supported types.
package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions is the list of file extensions used in E2E file-based tests.
// PDF is not generated here (no minimal PDF with extractable text); .odt/.rtf go through
// lu4p/cat and are covered by internal/extract.
var SupportedFileExtensions = []string{
	".txt", ".md", ".rst",
	".docx", ".xlsx", ".pptx", ".odp", ".ods",
}

// WriteMinimalFile returns the bytes of a minimal file of the given extension whose pages
// hold the given texts, in order.
func WriteMinimalFile(ext string, pages []string) ([]byte, error) {
	switch ext {
	case ".txt", ".md", ".rst":
		return []byte(strings.Join(pages, "\f")), nil
	case ".docx":
		return minimalDocx(pages)
	case ".pptx":
		return minimalPptx(pages)
	case ".odp":
		return minimalODF(pages, `<draw:page draw:name="p%d"><draw:text-box><text:p>%s</text:p></draw:text-box></draw:page>`)
	case ".ods":
		return minimalODF(pages, `<table:table table:name="t%d"><table:table-row><table:table-cell><text:p>%s</text:p></table:table-cell></table:table-row></table:table>`)
	case ".xlsx":
		return minimalXlsx(pages)
	default:
		return nil, fmt.Errorf("no fixture for %s", ext)
	}
}

func zipFiles(files map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalDocx(pages []string) ([]byte, error) {
	var body strings.Builder
	for i, p := range pages {
		if i > 0 {
			body.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
		}
		body.WriteString(`<w:p><w:r><w:t>` + html.EscapeString(p) + `</w:t></w:r></w:p>`)
	}
	return zipFiles(map[string]string{
		"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body.String() + `</w:body></w:document>`,
	})
}

func minimalPptx(pages []string) ([]byte, error) {
	files := make(map[string]string, len(pages))
	for i, p := range pages {
		files[fmt.Sprintf("ppt/slides/slide%d.xml", i+1)] = `<p:sld xmlns:p="a" xmlns:a="b"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` +
			html.EscapeString(p) + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	return zipFiles(files)
}

func minimalODF(pages []string, pageFormat string) ([]byte, error) {
	var body strings.Builder
	for i, p := range pages {
		body.WriteString(fmt.Sprintf(pageFormat, i+1, html.EscapeString(p)))
	}
	return zipFiles(map[string]string{
		"content.xml": `<office:document><office:body>` + body.String() + `</office:body></office:document>`,
	})
}

func minimalXlsx(pages []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	for i, p := range pages {
		sheet := fmt.Sprintf("Sheet%d", i+1)
		if i > 0 {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, err
			}
		}
		if err := f.SetCellValue(sheet, "A1", p); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
