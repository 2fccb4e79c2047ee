package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
	"github.com/xxxsen/docvault/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

var templateColumns = []string{
	"id", "name", "doc_type", "language", "filename", "format", "classification",
	"storage_key", "fields_json", "created_by", "ctime", "mtime",
}

type TemplateRepo struct {
	db *sql.DB
}

func NewTemplateRepo(db *sql.DB) *TemplateRepo {
	return &TemplateRepo{db: db}
}

func (r *TemplateRepo) Create(ctx context.Context, tpl *model.Template) error {
	fieldsJSON, err := json.Marshal(tpl.Fields)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":             tpl.ID,
		"name":           tpl.Name,
		"doc_type":       tpl.DocType,
		"language":       tpl.Language,
		"filename":       tpl.Filename,
		"format":         tpl.Format,
		"classification": tpl.Classification.String(),
		"storage_key":    tpl.StorageKey,
		"fields_json":    string(fieldsJSON),
		"created_by":     tpl.CreatedBy,
		"ctime":          tpl.Ctime,
		"mtime":          tpl.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("templates", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.Conflict("template already exists")
		}
		return err
	}
	return nil
}

func (r *TemplateRepo) Get(ctx context.Context, id string) (*model.Template, error) {
	sqlStr, args, err := builder.BuildSelect("templates", map[string]interface{}{"id": id}, templateColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.NotFound("template not found")
	}
	return scanTemplate(rows)
}

func (r *TemplateRepo) List(ctx context.Context, levels []access.Level) ([]model.Template, error) {
	items := make([]model.Template, 0)
	if len(levels) == 0 {
		return items, nil
	}
	where := map[string]interface{}{
		"classification in": levelArgs(levels),
		"_orderby":          "mtime desc",
	}
	sqlStr, args, err := builder.BuildSelect("templates", where, templateColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *tpl)
	}
	return items, rows.Err()
}

func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("templates", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return execAffectOne(ctx, r.db, sqlStr, args, "template not found")
}

func scanTemplate(s rowScanner) (*model.Template, error) {
	var tpl model.Template
	var level, fieldsJSON string
	if err := s.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.DocType,
		&tpl.Language,
		&tpl.Filename,
		&tpl.Format,
		&level,
		&tpl.StorageKey,
		&fieldsJSON,
		&tpl.CreatedBy,
		&tpl.Ctime,
		&tpl.Mtime,
	); err != nil {
		return nil, err
	}
	var err error
	if tpl.Classification, err = access.ParseLevel(level); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(fieldsJSON), &tpl.Fields)
	return &tpl, nil
}
