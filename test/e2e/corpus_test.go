package e2e

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestBuildCorpus_Size(t *testing.T) {
	c := BuildCorpus(40)
	if c.TotalDocs != 40 || len(c.Documents) != 40 {
		t.Errorf("expected 40 documents, got %d", c.TotalDocs)
	}
	if c.TotalQueries != 40 {
		t.Errorf("expected one query per document, got %d", c.TotalQueries)
	}
}

func TestBuildCorpus_UniqueIDsAndSignatures(t *testing.T) {
	c := BuildCorpus(40)
	ids := make(map[uuid.UUID]bool)
	sigs := make(map[string]bool)
	for _, d := range c.Documents {
		if ids[d.ID] {
			t.Errorf("duplicate id %s", d.ID)
		}
		if sigs[d.Signature] {
			t.Errorf("duplicate signature %s", d.Signature)
		}
		ids[d.ID] = true
		sigs[d.Signature] = true
		if !strings.HasPrefix(d.Pages[0], d.Signature+" ") {
			t.Errorf("first page of %s does not carry its signature", d.Signature)
		}
	}
}

func TestBuildCorpus_SignaturesDoNotOverlap(t *testing.T) {
	c := BuildCorpus(40)
	for _, a := range c.Documents {
		text := strings.Join(a.Pages, " ")
		for _, b := range c.Documents {
			if a.ID != b.ID && strings.Contains(text, b.Signature) {
				t.Errorf("%s contains foreign signature %s", a.Signature, b.Signature)
			}
		}
	}
}

func TestBuildCorpus_Deterministic(t *testing.T) {
	a, b := BuildCorpus(5), BuildCorpus(5)
	for i := range a.Documents {
		if a.Documents[i].ID != b.Documents[i].ID {
			t.Errorf("document %d id differs between builds", i)
		}
	}
}

func TestBuildCorpus_CoversAllFileTypes(t *testing.T) {
	c := BuildCorpus(len(SupportedFileExtensions))
	seen := make(map[string]bool)
	for _, d := range c.Documents {
		seen[d.Ext] = true
	}
	for _, ext := range SupportedFileExtensions {
		if !seen[ext] {
			t.Errorf("no document of type %s", ext)
		}
	}
}
