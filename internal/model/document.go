package model

import "github.com/xxxsen/docvault/internal/access"

// Document is an ingested file. UploadDate is unix milliseconds so that
// documents uploaded within the same second still order deterministically.
type Document struct {
	ID             string          `json:"id"`
	Filename       string          `json:"filename"`
	Title          string          `json:"title"`
	Classification access.Level    `json:"classification"`
	UploaderID     string          `json:"owner"`
	UploadDate     int64           `json:"upload_date"`
	PageCount      int             `json:"total_pages"`
	ChunkCount     int             `json:"chunk_count"`
	ContentType    string          `json:"content_type"`
	StorageKey     string          `json:"-"`
	OCRMode        string          `json:"ocr_mode"`
	Abstract       string          `json:"abstract"`
	Language       string          `json:"language"`
	DocType        string          `json:"document_type"`
	Stats          ExtractionStats `json:"extraction_stats"`
	Mtime          int64           `json:"mtime"`
}

type ExtractionStats struct {
	TotalPages    int   `json:"total_pages"`
	PagesWithText int   `json:"pages_with_text"`
	PagesOCRUsed  int   `json:"pages_ocr_used"`
	PagesFailed   int   `json:"pages_failed"`
	FailedPages   []int `json:"failed_pages"`
}

const (
	PageSourceText   = "text"
	PageSourceOCR    = "ocr"
	PageSourceFailed = "failed"
)

// PageText is the extracted text of one 1-based page.
type PageText struct {
	Page   int    `json:"page"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Chunk is a retrievable unit of a document. Start and End are rune
// offsets into the text of Page.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Seq        int       `json:"seq"`
	Page       int       `json:"page"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

// ChunkCandidate is a chunk joined with the fields of its document that
// retrieval needs for access checks and ordering.
type ChunkCandidate struct {
	Chunk
	Filename       string       `json:"filename"`
	Classification access.Level `json:"classification"`
	UploadDate     int64        `json:"upload_date"`
}

type ScoredChunk struct {
	ChunkCandidate
	Score float64 `json:"score"`
}

type Source struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
}

type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
