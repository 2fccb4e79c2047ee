package service

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/filestore"
	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/pkg/timeutil"
	"github.com/xxxsen/docvault/internal/repo"
)

type DocumentService struct {
	docs  repo.DocumentRepository
	store filestore.Store
}

func NewDocumentService(docs repo.DocumentRepository, store filestore.Store) *DocumentService {
	return &DocumentService{docs: docs, store: store}
}

func (s *DocumentService) Get(ctx context.Context, subject access.Subject, id string) (*model.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccess(subject.MaxLevel, doc.Classification) {
		return nil, appErr.Forbidden("insufficient clearance for this document")
	}
	return doc, nil
}

// List returns the documents visible to subject, newest first. Filtering
// happens in the repository; the per item check guards against a
// repository that returns more than it was asked for.
func (s *DocumentService) List(ctx context.Context, subject access.Subject) ([]model.Document, error) {
	levels := access.AccessibleLevels(subject.MaxLevel)
	if len(levels) == 0 {
		return []model.Document{}, nil
	}
	docs, err := s.docs.List(ctx, levels)
	if err != nil {
		return nil, err
	}
	out := make([]model.Document, 0, len(docs))
	for _, doc := range docs {
		if access.CanAccess(subject.MaxLevel, doc.Classification) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *DocumentService) Delete(ctx context.Context, subject access.Subject, id string) error {
	if err := requireAdmin(subject); err != nil {
		return err
	}
	doc, err := s.Get(ctx, subject, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", id))
	for _, key := range []string{doc.StorageKey, pagesKey(doc.ID)} {
		if err := s.store.Delete(ctx, key); err != nil && !appErr.IsNotFound(err) {
			logger.Warn("delete document blob failed", zap.String("key", key), zap.Error(err))
		}
	}
	logger.Info("document deleted", zap.String("by", subject.UserID), zap.String("filename", doc.Filename))
	return nil
}

// Reclassify changes the classification of a document. The administrator
// must be cleared for both the current and the new level, and lowering
// the level needs explicit confirmation.
func (s *DocumentService) Reclassify(ctx context.Context, subject access.Subject, id, levelName string, confirmDowngrade bool) (*model.Document, error) {
	if err := requireAdmin(subject); err != nil {
		return nil, err
	}
	level, err := access.ParseLevel(levelName)
	if err != nil {
		return nil, appErr.Invalid(err.Error())
	}
	doc, err := s.Get(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccess(subject.MaxLevel, level) {
		return nil, appErr.Forbidden("insufficient clearance for the target classification")
	}
	if level == doc.Classification {
		return doc, nil
	}
	if level < doc.Classification && !confirmDowngrade {
		return nil, appErr.Invalid("lowering the classification requires confirm_downgrade")
	}
	now := timeutil.NowUnix()
	if err := s.docs.UpdateClassification(ctx, id, level, now); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("document reclassified",
		zap.String("document_id", id),
		zap.String("by", subject.UserID),
		zap.String("from", doc.Classification.String()),
		zap.String("to", level.String()))
	doc.Classification = level
	doc.Mtime = now
	return doc, nil
}

type Original struct {
	Document    *model.Document
	ContentType string
	Body        io.ReadCloser
}

// OpenOriginal returns the uploaded file. The caller closes Body.
func (s *DocumentService) OpenOriginal(ctx context.Context, subject access.Subject, id string) (*Original, error) {
	doc, err := s.Get(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	body, err := s.store.Open(ctx, doc.StorageKey)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.NotFound("original file not found")
		}
		return nil, err
	}
	ct := doc.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(doc.Filename))
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Original{Document: doc, ContentType: ct, Body: body}, nil
}

func (s *DocumentService) CheckOriginal(ctx context.Context, subject access.Subject, id string) (bool, error) {
	doc, err := s.Get(ctx, subject, id)
	if err != nil {
		return false, err
	}
	return s.store.Exists(ctx, doc.StorageKey)
}

type PageContent struct {
	DocumentID string        `json:"document_id"`
	Filename   string        `json:"filename"`
	Page       int           `json:"page_number"`
	TotalPages int           `json:"total_pages"`
	Source     string        `json:"source"`
	Content    string        `json:"content"`
	Chunks     []model.Chunk `json:"chunks"`
}

// PageContent returns the stored text of one page. An unknown filename and
// a document the subject may not read are both reported as not found.
func (s *DocumentService) PageContent(ctx context.Context, subject access.Subject, filename string, page int) (*PageContent, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, appErr.Invalid("filename is required")
	}
	if page < 1 {
		return nil, appErr.Invalid("page_number must be at least 1")
	}
	doc, err := s.docs.GetByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	if !access.CanAccess(subject.MaxLevel, doc.Classification) {
		return nil, appErr.NotFound("document not found")
	}
	if page > doc.PageCount {
		return nil, appErr.NotFound("page not found")
	}
	chunks, err := s.docs.ListChunks(ctx, doc.ID, page)
	if err != nil {
		return nil, err
	}
	out := &PageContent{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Page:       page,
		TotalPages: doc.PageCount,
		Chunks:     chunks,
	}
	pages, err := loadPages(ctx, s.store, doc.ID)
	if err == nil {
		for _, p := range pages {
			if p.Page == page {
				out.Content = p.Text
				out.Source = p.Source
			}
		}
		return out, nil
	}
	logutil.GetLogger(ctx).Warn("page texts unavailable, using chunks", zap.String("document_id", doc.ID), zap.Error(err))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	out.Content = strings.Join(texts, "\n")
	return out, nil
}

func loadPages(ctx context.Context, store filestore.Store, docID string) ([]model.PageText, error) {
	raw, err := filestore.ReadAll(ctx, store, pagesKey(docID))
	if err != nil {
		return nil, err
	}
	var pages []model.PageText
	if err := json.Unmarshal(raw, &pages); err != nil {
		return nil, appErr.Internal("decode page texts", err)
	}
	return pages, nil
}
