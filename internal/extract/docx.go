package extract

import (
	"archive/zip"
	"fmt"
	"html"
	"regexp"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// wtTag matches <w:t>text</w:t> with any attributes.
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	// docxPageBreak matches explicit page breaks and the breaks Word recorded at last render.
	docxPageBreak = regexp.MustCompile(`<w:br[^>]*w:type="page"[^>]*/>|<w:lastRenderedPageBreak/>`)
	// The main part may be declared with either attribute order.
	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// docxMainDocumentPath finds the main document part from [Content_Types].xml, falling back
// to word/document.xml.
func docxMainDocumentPath(zr *zip.Reader) string {
	data, err := readZipEntry(zr, contentTypesPath)
	if err != nil || data == nil {
		return docxDocumentXMLPath
	}
	types := string(data)
	for _, re := range []*regexp.Regexp{partNameRe, partNameRe2} {
		if m := re.FindStringSubmatch(types); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDocumentXMLPath
}

// extractDOCX returns the text of the main document split at page breaks. Only <w:t> runs
// are read, so paragraph and run attributes never hide content.
func extractDOCX(content []byte) ([]string, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return nil, err
	}
	docPath := docxMainDocumentPath(zr)
	docXML, err := readZipEntry(zr, docPath)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}
	if docXML == nil {
		return nil, fmt.Errorf("%w: DOCX part %s not found", ErrInvalidDocument, docPath)
	}

	sections := docxPageBreak.Split(string(docXML), -1)
	pages := make([]string, 0, len(sections))
	for _, section := range sections {
		var b strings.Builder
		for _, m := range wtTag.FindAllStringSubmatch(section, -1) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(html.UnescapeString(m[1]))
		}
		pages = append(pages, b.String())
	}
	return pages, nil
}
