// Package e2e provides end-to-end tests with a library of documents and per-document queries.
package e2e

import (
	"fmt"

	"github.com/google/uuid"
)

// corpusNamespace keeps corpus document IDs stable across runs.
var corpusNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("verso-rag:e2e-corpus"))

// E2EDocument is a library document in the E2E corpus. Signature is a token that appears
// in this document only, so retrieved context can be attributed to it.
type E2EDocument struct {
	ID        uuid.UUID
	Title     string
	Ext       string
	Signature string
	Pages     []string
}

// QueryTestCase is a question about one document.
type QueryTestCase struct {
	DocumentID  uuid.UUID
	Query       string
	Signature   string
	Description string
}

// Corpus holds documents and query test cases for E2E tests.
type Corpus struct {
	Documents    []E2EDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

type topic struct {
	title string
	pages []string
}

var topics = []topic{
	{"The Lighthouse Keeper", []string{
		"Every evening the keeper climbed one hundred and twelve steps to trim the wick and polish the lens.",
		"Storms arrived from the west in late autumn, and the log book recorded each passing ship by name.",
	}},
	{"A Field Guide to Moss", []string{
		"Moss grows where light is soft and water lingers, often on the north face of old stone walls.",
		"Collectors press samples between blotting paper and note the date, the substrate and the altitude.",
	}},
	{"Letters from the Salt Road", []string{
		"The caravan left before dawn so the animals could walk while the sand was still cool underfoot.",
		"Merchants traded salt for cloth at the oasis and wrote home about the price of water.",
	}},
	{"Notes on Bread", []string{
		"A starter is fed flour and water each morning until it rises and smells faintly of apples.",
		"Long cold proofing develops flavour, and a hot stone gives the loaf its open crumb and dark crust.",
	}},
	{"The Clockmaker's Apprentice", []string{
		"The apprentice learned to file brass wheels by hand before she was allowed near the escapement.",
		"A well regulated movement loses less than a minute a week when wound at the same hour each day.",
	}},
	{"Rivers of the Northern Plain", []string{
		"Spring melt swells the rivers until the low meadows flood and the ferries stop for several weeks.",
		"In summer the channels braid and shift, leaving gravel bars where terns build their nests.",
	}},
	{"A Short History of Maps", []string{
		"Early charts marked coastlines from the deck of a ship and left the interior blank or decorated.",
		"Triangulation let surveyors measure whole provinces from a chain of hilltop stations.",
	}},
	{"Beekeeping for Beginners", []string{
		"A calm colony is inspected on warm afternoons when most foragers are away from the hive.",
		"Honey is harvested only from frames that are capped, leaving enough stores for the winter.",
	}},
}

// BuildCorpus returns a corpus of n documents spread over all fixture file types, with one
// query test case per document.
func BuildCorpus(n int) *Corpus {
	docs := make([]E2EDocument, 0, n)
	cases := make([]QueryTestCase, 0, n)
	for i := 0; i < n; i++ {
		tp := topics[i%len(topics)]
		signature := fmt.Sprintf("REF%03d", i)
		pages := make([]string, len(tp.pages))
		copy(pages, tp.pages)
		pages[0] = signature + " " + pages[0]

		doc := E2EDocument{
			ID:        uuid.NewSHA1(corpusNamespace, []byte(signature)),
			Title:     fmt.Sprintf("%s, volume %d", tp.title, i/len(topics)+1),
			Ext:       SupportedFileExtensions[i%len(SupportedFileExtensions)],
			Signature: signature,
			Pages:     pages,
		}
		docs = append(docs, doc)
		cases = append(cases, QueryTestCase{
			DocumentID:  doc.ID,
			Query:       tp.pages[len(tp.pages)-1],
			Signature:   signature,
			Description: fmt.Sprintf("%s %s", signature, doc.Ext),
		})
	}
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}
