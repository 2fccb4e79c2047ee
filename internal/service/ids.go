package service

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

// Blob keys. Keys never contain path separators so every store accepts
// them unchanged.

func originalKey(docID, filename string) string {
	return "doc_" + docID + strings.ToLower(filepath.Ext(filename))
}

func pagesKey(docID string) string {
	return "pages_" + docID + ".json"
}

func templateKey(tplID, filename string) string {
	return "tpl_" + tplID + strings.ToLower(filepath.Ext(filename))
}

func generatedKey(filename string) string {
	return "gen_" + newID() + strings.ToLower(filepath.Ext(filename))
}
