package extract

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// slideName matches ppt/slides/slideN.xml and captures N.
	slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	// atTag matches <a:t>text</a:t> with any attributes.
	atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
)

// extractPPTX returns one page per slide, ordered by slide number. Missing slide numbers
// produce empty pages so PageIndex matches the slide number.
func extractPPTX(content []byte) ([]string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return nil, err
	}
	slides := make(map[int]string)
	maxSlide := 0
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		var parts []string
		for _, t := range atTag.FindAllStringSubmatch(string(data), -1) {
			parts = append(parts, html.UnescapeString(t[1]))
		}
		slides[n] = strings.Join(parts, " ")
		if n > maxSlide {
			maxSlide = n
		}
	}

	numbers := make([]int, 0, len(slides))
	for n := range slides {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	pages := make([]string, maxSlide)
	for _, n := range numbers {
		pages[n-1] = slides[n]
	}
	return pages, nil
}
