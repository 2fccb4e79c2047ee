package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/xxxsen/docvault/internal/config"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

// localEngine posts the PDF and page number to an OCR sidecar that
// answers {"text": "..."}.
type localEngine struct {
	endpoint string
	client   *http.Client
}

func init() {
	Register(ModeLocal, createLocalEngine)
}

func createLocalEngine(cfg config.OCRConfig) (Engine, error) {
	if strings.TrimSpace(cfg.Local.Endpoint) == "" {
		return nil, fmt.Errorf("ocr.local.endpoint is required")
	}
	return NewLocalEngine(cfg.Local.Endpoint, http.DefaultClient), nil
}

func NewLocalEngine(endpoint string, client *http.Client) Engine {
	if client == nil {
		client = http.DefaultClient
	}
	return &localEngine{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

func (e *localEngine) Name() string {
	return ModeLocal
}

func (e *localEngine) RecognizePage(ctx context.Context, pdf []byte, page int) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "document.pdf")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(pdf); err != nil {
		return "", err
	}
	if err := writer.WriteField("page", strconv.Itoa(page)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := e.client.Do(req)
	if err != nil {
		return "", appErr.TransientExtraction(fmt.Sprintf("local ocr page %d", page), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		cause := fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= http.StatusInternalServerError {
			return "", appErr.TransientExtraction(fmt.Sprintf("local ocr page %d", page), cause)
		}
		return "", appErr.Extraction(fmt.Sprintf("local ocr page %d", page), cause)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", appErr.Extraction("decode local ocr response", err)
	}
	return strings.TrimSpace(out.Text), nil
}
