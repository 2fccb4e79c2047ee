package service

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/docx"
	"github.com/xxxsen/docvault/internal/filestore"
	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/pkg/timeutil"
	"github.com/xxxsen/docvault/internal/repo"
)

const maxTemplateBytes = 20 << 20

type TemplateService struct {
	templates repo.TemplateRepository
	store     filestore.Store
}

func NewTemplateService(templates repo.TemplateRepository, store filestore.Store) *TemplateService {
	return &TemplateService{templates: templates, store: store}
}

type TemplateUploadInput struct {
	Name           string
	DocType        string
	Language       string
	Classification string
	Filename       string
	Data           []byte
}

type TemplateView struct {
	model.Template
	FieldsCount int `json:"fields_count"`
}

type TemplateFields struct {
	TemplateID string                `json:"template_id"`
	Name       string                `json:"template_name"`
	Fields     []model.TemplateField `json:"fields"`
}

type GeneratedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Upload stores a template and caches its fields on the record. The
// container is parsed once here; generation never re-validates it.
func (s *TemplateService) Upload(ctx context.Context, subject access.Subject, in TemplateUploadInput) (*TemplateView, error) {
	if err := requireAdmin(subject); err != nil {
		return nil, err
	}
	filename := strings.TrimSpace(filepath.Base(strings.ReplaceAll(in.Filename, "\\", "/")))
	format, err := docx.FormatFor(filename)
	if err != nil {
		return nil, err
	}
	if len(in.Data) == 0 {
		return nil, appErr.Invalid("file is empty")
	}
	if len(in.Data) > maxTemplateBytes {
		return nil, appErr.Invalidf("template exceeds %d MB", maxTemplateBytes>>20)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	level := access.LevelPublic
	if strings.TrimSpace(in.Classification) != "" {
		level, err = access.ParseLevel(in.Classification)
		if err != nil {
			return nil, appErr.Invalid(err.Error())
		}
	}
	if !access.CanAccess(subject.MaxLevel, level) {
		return nil, appErr.Forbidden("insufficient clearance for the requested classification")
	}
	fields, err := docx.ExtractFields(format, in.Data)
	if err != nil {
		return nil, err
	}
	now := timeutil.NowUnix()
	tpl := &model.Template{
		ID:             newID(),
		Name:           name,
		DocType:        strings.TrimSpace(in.DocType),
		Language:       strings.TrimSpace(in.Language),
		Filename:       filename,
		Format:         format,
		Classification: level,
		Fields:         fields,
		CreatedBy:      subject.UserID,
		Ctime:          now,
		Mtime:          now,
	}
	tpl.StorageKey = templateKey(tpl.ID, filename)
	if err := s.store.Save(ctx, tpl.StorageKey, bytes.NewReader(in.Data), int64(len(in.Data))); err != nil {
		return nil, appErr.Internal("store template", err)
	}
	if err := s.templates.Create(ctx, tpl); err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), tpl.StorageKey); derr != nil && !appErr.IsNotFound(derr) {
			logutil.GetLogger(ctx).Warn("rollback template blob failed", zap.String("key", tpl.StorageKey), zap.Error(derr))
		}
		return nil, err
	}
	logutil.GetLogger(ctx).Info("template uploaded",
		zap.String("template_id", tpl.ID),
		zap.String("by", subject.UserID),
		zap.Int("fields", len(fields)))
	return &TemplateView{Template: *tpl, FieldsCount: len(fields)}, nil
}

func (s *TemplateService) List(ctx context.Context, subject access.Subject) ([]TemplateView, error) {
	levels := access.AccessibleLevels(subject.MaxLevel)
	out := make([]TemplateView, 0)
	if len(levels) == 0 {
		return out, nil
	}
	items, err := s.templates.List(ctx, levels)
	if err != nil {
		return nil, err
	}
	for _, tpl := range items {
		if !access.CanAccess(subject.MaxLevel, tpl.Classification) {
			continue
		}
		out = append(out, TemplateView{Template: tpl, FieldsCount: len(tpl.Fields)})
	}
	return out, nil
}

func (s *TemplateService) get(ctx context.Context, subject access.Subject, id string) (*model.Template, error) {
	tpl, err := s.templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccess(subject.MaxLevel, tpl.Classification) {
		return nil, appErr.Forbidden("insufficient clearance for this template")
	}
	return tpl, nil
}

func (s *TemplateService) Fields(ctx context.Context, subject access.Subject, id string) (*TemplateFields, error) {
	tpl, err := s.get(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	fields := tpl.Fields
	if fields == nil {
		fields = []model.TemplateField{}
	}
	return &TemplateFields{TemplateID: tpl.ID, Name: tpl.Name, Fields: fields}, nil
}

// Generate renders the template with values. Missing values render as
// empty strings and unknown names are ignored.
func (s *TemplateService) Generate(ctx context.Context, subject access.Subject, id string, values map[string]string) (*GeneratedFile, error) {
	tpl, err := s.get(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	raw, err := filestore.ReadAll(ctx, s.store, tpl.StorageKey)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.NotFound("template file not found")
		}
		return nil, err
	}
	out, err := docx.Render(tpl.Format, raw, values)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(tpl.Filename)
	filename := strings.TrimSuffix(tpl.Filename, ext) + "_filled" + ext
	key := generatedKey(filename)
	if err := s.store.Save(ctx, key, bytes.NewReader(out), int64(len(out))); err != nil {
		logutil.GetLogger(ctx).Warn("store generated file failed", zap.String("template_id", tpl.ID), zap.Error(err))
	}
	logutil.GetLogger(ctx).Info("template generated",
		zap.String("template_id", tpl.ID),
		zap.String("by", subject.UserID),
		zap.String("key", key))
	return &GeneratedFile{Filename: filename, ContentType: docx.ContentType(tpl.Format), Data: out}, nil
}

func (s *TemplateService) Delete(ctx context.Context, subject access.Subject, id string) error {
	if err := requireAdmin(subject); err != nil {
		return err
	}
	tpl, err := s.get(ctx, subject, id)
	if err != nil {
		return err
	}
	if err := s.templates.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, tpl.StorageKey); err != nil && !appErr.IsNotFound(err) {
		logutil.GetLogger(ctx).Warn("delete template blob failed", zap.String("template_id", id), zap.Error(err))
	}
	return nil
}
