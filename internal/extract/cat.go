package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractWithCat handles RTF and ODT, which have no page structure, as one page.
func extractWithCat(content []byte) ([]string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return []string{text}, nil
}
