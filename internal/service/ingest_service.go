package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/ai"
	"github.com/xxxsen/docvault/internal/extract"
	"github.com/xxxsen/docvault/internal/filestore"
	"github.com/xxxsen/docvault/internal/index"
	"github.com/xxxsen/docvault/internal/model"
	"github.com/xxxsen/docvault/internal/ocr"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/pkg/timeutil"
	"github.com/xxxsen/docvault/internal/repo"
)

const (
	maxTitleRunes    = 80
	defaultUploadMax = 50 << 20
)

type IngestConfig struct {
	MaxUploadBytes int64
	ExtractTimeout time.Duration
	PageTimeout    time.Duration
	Workers        int
}

type UploadInput struct {
	Filename       string
	Data           []byte
	UseCloudOCR    bool
	Classification string
}

type IngestService struct {
	docs     repo.DocumentRepository
	jobs     repo.IngestJobRepository
	store    filestore.Store
	ocr      *ocr.Registry
	indexer  *index.Indexer
	ai       *ai.Manager
	cfg      IngestConfig
	slots    *semaphore.Weighted
	inflight *inflight

	extractorFor func(filename string) (extract.Extractor, error)

	mu      sync.Mutex
	waiters map[string]chan struct{}
	wg      sync.WaitGroup
}

func NewIngestService(docs repo.DocumentRepository, jobs repo.IngestJobRepository, store filestore.Store, ocrs *ocr.Registry, indexer *index.Indexer, manager *ai.Manager, cfg IngestConfig) *IngestService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultUploadMax
	}
	return &IngestService{
		docs:     docs,
		jobs:     jobs,
		store:    store,
		ocr:      ocrs,
		indexer:  indexer,
		ai:       manager,
		cfg:      cfg,
		slots:    semaphore.NewWeighted(int64(cfg.Workers)),
		inflight: newInflight(),
		waiters:  make(map[string]chan struct{}),

		extractorFor: extract.ForFilename,
	}
}

// Submit validates an upload and starts ingesting it in the background.
// Every check runs before anything is written, so a rejected upload
// leaves no trace.
func (s *IngestService) Submit(ctx context.Context, subject access.Subject, in UploadInput) (*model.IngestJob, error) {
	if !access.CanUpload(subject.Role, subject.MaxLevel) {
		return nil, appErr.Forbidden("upload requires SECRET clearance")
	}
	filename := strings.TrimSpace(filepath.Base(strings.ReplaceAll(in.Filename, "\\", "/")))
	if filename == "" || filename == "." || filename == "/" {
		return nil, appErr.Invalid("filename is required")
	}
	if len(in.Data) == 0 {
		return nil, appErr.Invalid("file is empty")
	}
	if int64(len(in.Data)) > s.cfg.MaxUploadBytes {
		return nil, appErr.Invalidf("file exceeds the %d MB upload limit", s.cfg.MaxUploadBytes>>20)
	}
	extractor, err := s.extractorFor(filename)
	if err != nil {
		return nil, err
	}
	level := access.LevelSecret
	if strings.TrimSpace(in.Classification) != "" {
		level, err = access.ParseLevel(in.Classification)
		if err != nil {
			return nil, appErr.Invalid(err.Error())
		}
	}
	if !access.CanAccess(subject.MaxLevel, level) {
		return nil, appErr.Forbidden("insufficient clearance for the requested classification")
	}
	if _, err := s.docs.GetByFilename(ctx, filename); err == nil {
		return nil, appErr.Conflict("a document with this filename already exists")
	} else if !appErr.IsNotFound(err) {
		return nil, err
	}
	key := inflightKey(filename)
	if !s.inflight.acquire(key) {
		return nil, appErr.Conflict("this file is already being ingested")
	}

	now := timeutil.NowUnix()
	job := &model.IngestJob{
		ID:       newID(),
		UserID:   subject.UserID,
		Filename: filename,
		State:    model.IngestReceived,
		Ctime:    now,
		Mtime:    now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.inflight.release(key)
		return nil, err
	}
	done := make(chan struct{})
	s.mu.Lock()
	s.waiters[job.ID] = done
	s.mu.Unlock()

	task := &ingestTask{
		job:       *job,
		extractor: extractor,
		data:      in.Data,
		level:     level,
		ocrMode:   ocr.ModeFor(in.UseCloudOCR),
		subject:   subject,
		logger:    logutil.GetLogger(ctx).With(zap.String("job_id", job.ID), zap.String("filename", filename)),
	}
	task.logger.Info("ingest job received", zap.String("classification", level.String()), zap.String("ocr_mode", task.ocrMode))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.inflight.release(key)
			s.mu.Lock()
			delete(s.waiters, job.ID)
			s.mu.Unlock()
			close(done)
		}()
		// The request context ends with the response; the job must not.
		s.run(context.WithoutCancel(ctx), task)
	}()
	return job, nil
}

// Wait blocks until the job reaches a terminal state, timeout elapses or
// ctx ends, then returns the current job record.
func (s *IngestService) Wait(ctx context.Context, jobID string, timeout time.Duration) (*model.IngestJob, error) {
	s.mu.Lock()
	done, ok := s.waiters[jobID]
	s.mu.Unlock()
	if ok && timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return s.jobs.Get(context.WithoutCancel(ctx), jobID)
}

// Get returns a job to its owner or to an administrator.
func (s *IngestService) Get(ctx context.Context, subject access.Subject, jobID string) (*model.IngestJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != subject.UserID && !access.CanAdminister(subject.Role) {
		return nil, appErr.NotFound("ingest job not found")
	}
	return job, nil
}

// Shutdown waits for running jobs until ctx ends.
func (s *IngestService) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type ingestTask struct {
	job       model.IngestJob
	extractor extract.Extractor
	data      []byte
	level     access.Level
	ocrMode   string
	subject   access.Subject
	logger    *zap.Logger
}

func (s *IngestService) run(ctx context.Context, task *ingestTask) {
	logger := task.logger
	if err := s.slots.Acquire(ctx, 1); err != nil {
		s.fail(ctx, task, err)
		return
	}
	defer s.slots.Release(1)
	if s.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ExtractTimeout)
		defer cancel()
	}
	start := time.Now()
	result, err := s.process(ctx, task)
	if err != nil {
		s.fail(ctx, task, err)
		return
	}
	task.job.DocumentID = result.DocID
	task.job.Result = result
	if err := s.setState(ctx, task, model.IngestReady); err != nil {
		logger.Error("persist ready state failed", zap.Error(err))
		return
	}
	logger.Info("ingest job ready",
		zap.String("document_id", result.DocID),
		zap.Int("chunks", result.TotalChunks),
		zap.Int("pages", result.Stats.TotalPages),
		zap.Duration("cost", time.Since(start)))
}

func (s *IngestService) process(ctx context.Context, task *ingestTask) (*model.IngestResult, error) {
	logger := task.logger
	if err := s.setState(ctx, task, model.IngestExtracting); err != nil {
		return nil, err
	}
	opts := extract.Options{PageTimeout: s.cfg.PageTimeout}
	if strings.EqualFold(filepath.Ext(task.job.Filename), ".pdf") {
		var engine ocr.Engine
		err := errors.New("no ocr engines configured")
		if s.ocr != nil {
			engine, err = s.ocr.Get(task.ocrMode)
		}
		if err != nil {
			logger.Warn("ocr engine unavailable", zap.String("ocr_mode", task.ocrMode), zap.Error(err))
			opts.OCRError = err
		}
		opts.OCR = engine
	}
	extracted, err := task.extractor.Extract(ctx, task.data, opts)
	if err != nil {
		return nil, err
	}
	if !extracted.HasText() {
		return nil, appErr.Extraction("no text could be extracted from the file", nil)
	}

	if err := s.setState(ctx, task, model.IngestChunking); err != nil {
		return nil, err
	}
	docID := newID()
	chunks, err := s.indexer.Split(docID, extracted.Pages)
	if err != nil {
		return nil, appErr.Internal("chunk document", err)
	}
	if len(chunks) == 0 {
		return nil, appErr.Extraction("no text could be extracted from the file", nil)
	}

	if err := s.setState(ctx, task, model.IngestIndexing); err != nil {
		return nil, err
	}
	if err := s.indexer.Embed(ctx, chunks); err != nil {
		return nil, err
	}
	title := s.title(ctx, task.logger, task.job.Filename, extracted.Pages)
	profile := extract.Describe(extracted.Pages)

	now := timeutil.NowMilli()
	doc := &model.Document{
		ID:             docID,
		Filename:       task.job.Filename,
		Title:          title,
		Classification: task.level,
		UploaderID:     task.subject.UserID,
		UploadDate:     now,
		PageCount:      len(extracted.Pages),
		ChunkCount:     len(chunks),
		ContentType:    extracted.ContentType,
		StorageKey:     originalKey(docID, task.job.Filename),
		OCRMode:        task.ocrMode,
		Abstract:       profile.Abstract,
		Language:       profile.Language,
		DocType:        profile.DocType,
		Stats:          extracted.Stats,
		Mtime:          now / 1000,
	}
	if err := s.commit(ctx, task.logger, doc, task.data, extracted.Pages, chunks); err != nil {
		return nil, err
	}
	return &model.IngestResult{
		DocID:       doc.ID,
		Filename:    doc.Filename,
		Title:       doc.Title,
		TotalChunks: len(chunks),
		Stats:       extracted.Stats,
		Warnings:    extracted.Warnings,
		OCRMode:     task.ocrMode,
	}, nil
}

// commit stores the blobs first and the rows last. Rows are written in one
// transaction, so on any failure removing the blobs restores the previous
// state.
func (s *IngestService) commit(ctx context.Context, logger *zap.Logger, doc *model.Document, original []byte, pages []model.PageText, chunks []model.Chunk) error {
	pagesRaw, err := json.Marshal(pages)
	if err != nil {
		return appErr.Internal("encode page texts", err)
	}
	written := make([]string, 0, 2)
	rollback := func() {
		cleanup := context.WithoutCancel(ctx)
		for _, key := range written {
			if err := s.store.Delete(cleanup, key); err != nil && !appErr.IsNotFound(err) {
				logger.Warn("rollback blob failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	blobs := []struct {
		key  string
		data []byte
	}{
		{doc.StorageKey, original},
		{pagesKey(doc.ID), pagesRaw},
	}
	for _, b := range blobs {
		if err := s.store.Save(ctx, b.key, bytes.NewReader(b.data), int64(len(b.data))); err != nil {
			rollback()
			return appErr.Internal("store file", err)
		}
		written = append(written, b.key)
	}
	if err := s.docs.CreateWithChunks(ctx, doc, chunks); err != nil {
		rollback()
		if appErr.IsConflict(err) {
			return appErr.Conflict("a document with this filename already exists")
		}
		return err
	}
	return nil
}

func (s *IngestService) setState(ctx context.Context, task *ingestTask, state model.IngestState) error {
	task.job.State = state
	task.job.Mtime = timeutil.NowUnix()
	if err := s.jobs.Update(context.WithoutCancel(ctx), &task.job); err != nil {
		return err
	}
	task.logger.Debug("ingest state changed", zap.String("state", string(state)))
	return nil
}

func (s *IngestService) fail(ctx context.Context, task *ingestTask, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = appErr.Extraction("ingestion timed out", err)
	}
	task.job.ErrorKind = string(appErr.KindOf(err))
	task.job.ErrorMessage = appErr.MessageOf(err)
	task.logger.Error("ingest job failed",
		zap.String("state", string(task.job.State)),
		zap.String("error_kind", task.job.ErrorKind),
		zap.Error(err))
	if uerr := s.setState(ctx, task, model.IngestFailed); uerr != nil {
		task.logger.Error("persist failed state failed", zap.Error(uerr))
	}
}

// title asks the generator first, then falls back to the first meaningful
// line of the document and finally to the filename without extension.
func (s *IngestService) title(ctx context.Context, logger *zap.Logger, filename string, pages []model.PageText) string {
	if s.ai != nil && s.ai.HasGenerator() {
		var sb strings.Builder
		for _, p := range pages {
			sb.WriteString(p.Text)
			sb.WriteString("\n")
			if sb.Len() > 8000 {
				break
			}
		}
		t, err := s.ai.Title(ctx, sb.String())
		if err == nil {
			return truncateRunes(t, maxTitleRunes)
		}
		logger.Warn("generate title failed, using fallback", zap.Error(err))
	}
	for _, p := range pages {
		if line := firstMeaningfulLine(p.Text); line != "" {
			return truncateRunes(line, maxTitleRunes)
		}
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func firstMeaningfulLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		letters := 0
		for _, r := range line {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters >= 3 {
			return strings.TrimLeft(line, "#*-> ")
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// Reindex rebuilds the chunks of a document from its stored page texts
// and swaps them in atomically. Unchanged text yields identical chunks.
func (s *IngestService) Reindex(ctx context.Context, subject access.Subject, docID string) (int, error) {
	if err := requireAdmin(subject); err != nil {
		return 0, err
	}
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return 0, err
	}
	if !access.CanAccess(subject.MaxLevel, doc.Classification) {
		return 0, appErr.Forbidden("insufficient clearance for this document")
	}
	pages, err := loadPages(ctx, s.store, doc.ID)
	if err != nil {
		return 0, err
	}
	chunks, err := s.indexer.Build(ctx, doc.ID, pages)
	if err != nil {
		return 0, err
	}
	if err := s.docs.ReplaceChunks(ctx, doc.ID, chunks, timeutil.NowUnix()); err != nil {
		return 0, err
	}
	logutil.GetLogger(ctx).Info("document reindexed", zap.String("document_id", doc.ID), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}
