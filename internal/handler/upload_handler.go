package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/pkg/response"
	"github.com/xxxsen/docvault/internal/service"
)

type UploadHandler struct {
	ingest     *service.IngestService
	maxBytes   int64
	uploadWait time.Duration
}

func NewUploadHandler(ingest *service.IngestService, maxBytes int64, uploadWait time.Duration) *UploadHandler {
	return &UploadHandler{ingest: ingest, maxBytes: maxBytes, uploadWait: uploadWait}
}

type uploadResponse struct {
	Status          string                `json:"status"`
	JobID           string                `json:"job_id"`
	DocID           string                `json:"doc_id"`
	Filename        string                `json:"filename"`
	Title           string                `json:"title"`
	TotalChunks     int                   `json:"total_chunks"`
	ExtractionStats model.ExtractionStats `json:"extraction_stats"`
	Warnings        []string              `json:"warnings,omitempty"`
	OCRMode         string                `json:"ocr_mode"`
}

// Upload accepts a multipart file. The response is synchronous when the job
// finishes within the configured wait, otherwise 202 with the job id.
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	filename, data, err := readFormFile(c, h.maxBytes)
	if err != nil {
		handleError(c, err)
		return
	}
	ctx := c.Request.Context()
	job, err := h.ingest.Submit(ctx, getSubject(c), service.UploadInput{
		Filename:       filename,
		Data:           data,
		UseCloudOCR:    formBool(c, "use_cloud_ocr"),
		Classification: c.PostForm("classification"),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	if formBool(c, "async") || h.uploadWait <= 0 {
		response.Accepted(c, gin.H{"job_id": job.ID, "state": job.State})
		return
	}
	job, err = h.ingest.Wait(ctx, job.ID, h.uploadWait)
	if err != nil {
		handleError(c, err)
		return
	}
	writeJob(c, job)
}

func (h *UploadHandler) Job(c *gin.Context) {
	job, err := h.ingest.Get(c.Request.Context(), getSubject(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}

func writeJob(c *gin.Context, job *model.IngestJob) {
	switch job.State {
	case model.IngestReady:
		res := job.Result
		if res == nil {
			res = &model.IngestResult{DocID: job.DocumentID, Filename: job.Filename}
		}
		response.Success(c, uploadResponse{
			Status:          "success",
			JobID:           job.ID,
			DocID:           res.DocID,
			Filename:        res.Filename,
			Title:           res.Title,
			TotalChunks:     res.TotalChunks,
			ExtractionStats: res.Stats,
			Warnings:        res.Warnings,
			OCRMode:         res.OCRMode,
		})
	case model.IngestFailed:
		handleError(c, &appErr.Error{Kind: appErr.Kind(job.ErrorKind), Message: job.ErrorMessage})
	default:
		response.Accepted(c, gin.H{"job_id": job.ID, "state": job.State})
	}
}
