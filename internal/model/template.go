package model

import "github.com/xxxsen/docvault/internal/access"

const (
	TemplateFormatDOCX = "docx"
	TemplateFormatText = "text"
)

type Template struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	DocType        string          `json:"doc_type"`
	Language       string          `json:"language"`
	Filename       string          `json:"original_filename"`
	Format         string          `json:"format"`
	Classification access.Level    `json:"classification"`
	StorageKey     string          `json:"-"`
	Fields         []TemplateField `json:"-"`
	CreatedBy      string          `json:"created_by"`
	Ctime          int64           `json:"ctime"`
	Mtime          int64           `json:"mtime"`
}

type TemplateField struct {
	Name    string `json:"placeholder_name"`
	Label   string `json:"label"`
	Context string `json:"context"`
}
