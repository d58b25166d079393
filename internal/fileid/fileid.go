// Package fileid derives deterministic document IDs from file paths, for documents indexed
// from outside the library.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

const prefix = "file:"

// Namespace scopes path-derived IDs so they never collide with random library IDs.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("verso-reads:file-documents"))

// DocumentID returns a stable version-5 UUID for the given path. The path is cleaned first,
// so "/a/b" and "/a/./b/" give the same ID. Callers should pass absolute paths.
func DocumentID(path string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(prefix+filepath.Clean(path)))
}

// AbsDocumentID resolves path to an absolute path and returns its ID.
func AbsDocumentID(path string) (uuid.UUID, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return uuid.Nil, "", err
	}
	return DocumentID(abs), abs, nil
}
