package model

type IngestState string

const (
	IngestReceived   IngestState = "RECEIVED"
	IngestExtracting IngestState = "EXTRACTING"
	IngestChunking   IngestState = "CHUNKING"
	IngestIndexing   IngestState = "INDEXING"
	IngestReady      IngestState = "READY"
	IngestFailed     IngestState = "FAILED"
)

func (s IngestState) Terminal() bool {
	return s == IngestReady || s == IngestFailed
}

type IngestResult struct {
	DocID       string          `json:"doc_id"`
	Filename    string          `json:"filename"`
	Title       string          `json:"title"`
	TotalChunks int             `json:"total_chunks"`
	Stats       ExtractionStats `json:"extraction_stats"`
	Warnings    []string        `json:"warnings,omitempty"`
	OCRMode     string          `json:"ocr_mode"`
}

type IngestJob struct {
	ID           string        `json:"job_id"`
	UserID       string        `json:"user_id"`
	Filename     string        `json:"filename"`
	State        IngestState   `json:"state"`
	DocumentID   string        `json:"doc_id,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error,omitempty"`
	Result       *IngestResult `json:"result,omitempty"`
	Ctime        int64         `json:"ctime"`
	Mtime        int64         `json:"mtime"`
}
