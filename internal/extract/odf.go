package extract

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

const odfContentPath = "content.xml"

// Page delimiters in OpenDocument content.xml.
const (
	odpPageTag = "<draw:page "
	odsPageTag = "<table:table "
)

// odfText matches innermost text:p, text:span and text:h elements.
var odfText = regexp.MustCompile(`<text:(?:p|span|h)[^>]*>([^<]*)</text:(?:p|span|h)>`)

// extractODF returns one page per draw:page (presentations) or table:table (spreadsheets).
func extractODF(content []byte, pageTag string) ([]string, error) {
	zr, err := openZip(content, "OpenDocument")
	if err != nil {
		return nil, err
	}
	data, err := readZipEntry(zr, odfContentPath)
	if err != nil {
		return nil, fmt.Errorf("extract OpenDocument: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: OpenDocument %s not found", ErrInvalidDocument, odfContentPath)
	}

	sections := strings.Split(string(data), pageTag)
	if len(sections) > 1 {
		// Text before the first page element is document-level, not a page.
		sections = sections[1:]
	}
	pages := make([]string, 0, len(sections))
	for _, section := range sections {
		var parts []string
		for _, m := range odfText.FindAllStringSubmatch(section, -1) {
			parts = append(parts, html.UnescapeString(m[1]))
		}
		pages = append(pages, strings.Join(parts, " "))
	}
	return pages, nil
}
