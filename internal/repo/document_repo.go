package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
	"github.com/xxxsen/docvault/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

const chunkInsertBatch = 200

var documentColumns = []string{
	"id", "filename", "title", "classification", "uploader_id", "upload_date",
	"page_count", "chunk_count", "content_type", "storage_key", "ocr_mode", "stats_json", "mtime",
	"abstract", "language", "document_type",
}

type documentRow struct {
	ID             string `db:"id"`
	Filename       string `db:"filename"`
	Title          string `db:"title"`
	Classification string `db:"classification"`
	UploaderID     string `db:"uploader_id"`
	UploadDate     int64  `db:"upload_date"`
	PageCount      int    `db:"page_count"`
	ChunkCount     int    `db:"chunk_count"`
	ContentType    string `db:"content_type"`
	StorageKey     string `db:"storage_key"`
	OCRMode        string `db:"ocr_mode"`
	StatsJSON      string `db:"stats_json"`
	Mtime          int64  `db:"mtime"`
	Abstract       string `db:"abstract"`
	Language       string `db:"language"`
	DocType        string `db:"document_type"`
}

func (row *documentRow) toModel() (*model.Document, error) {
	level, err := access.ParseLevel(row.Classification)
	if err != nil {
		return nil, err
	}
	doc := &model.Document{
		ID:             row.ID,
		Filename:       row.Filename,
		Title:          row.Title,
		Classification: level,
		UploaderID:     row.UploaderID,
		UploadDate:     row.UploadDate,
		PageCount:      row.PageCount,
		ChunkCount:     row.ChunkCount,
		ContentType:    row.ContentType,
		StorageKey:     row.StorageKey,
		OCRMode:        row.OCRMode,
		Abstract:       row.Abstract,
		Language:       row.Language,
		DocType:        row.DocType,
		Mtime:          row.Mtime,
	}
	if row.StatsJSON != "" {
		_ = json.Unmarshal([]byte(row.StatsJSON), &doc.Stats)
	}
	return doc, nil
}

type chunkRow struct {
	ID         string          `db:"id"`
	DocumentID string          `db:"document_id"`
	Seq        int             `db:"seq"`
	Page       int             `db:"page"`
	Start      int             `db:"start_offset"`
	End        int             `db:"end_offset"`
	Content    string          `db:"content"`
	Embedding  pgvector.Vector `db:"embedding"`
}

func (row *chunkRow) toModel() model.Chunk {
	return model.Chunk{
		ID:         row.ID,
		DocumentID: row.DocumentID,
		Seq:        row.Seq,
		Page:       row.Page,
		Start:      row.Start,
		End:        row.End,
		Text:       row.Content,
		Embedding:  row.Embedding.Slice(),
	}
}

type DocumentRepo struct {
	db  *sql.DB
	dbx *sqlx.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db, dbx: sqlx.NewDb(db, "postgres")}
}

func (r *DocumentRepo) CreateWithChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk) error {
	statsJSON, err := json.Marshal(doc.Stats)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":             doc.ID,
		"filename":       doc.Filename,
		"title":          doc.Title,
		"classification": doc.Classification.String(),
		"uploader_id":    doc.UploaderID,
		"upload_date":    doc.UploadDate,
		"page_count":     doc.PageCount,
		"chunk_count":    len(chunks),
		"content_type":   doc.ContentType,
		"storage_key":    doc.StorageKey,
		"ocr_mode":       doc.OCRMode,
		"stats_json":     string(statsJSON),
		"mtime":          doc.Mtime,
		"abstract":       doc.Abstract,
		"language":       doc.Language,
		"document_type":  doc.DocType,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.Conflict("document already exists")
		}
		return err
	}
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	doc.ChunkCount = len(chunks)
	return nil
}

func (r *DocumentRepo) ReplaceChunks(ctx context.Context, docID string, chunks []model.Chunk, mtime int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	update := map[string]interface{}{"chunk_count": len(chunks), "mtime": mtime}
	sqlStr, args, err := builder.BuildUpdate("documents", map[string]interface{}{"id": docID}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if err := execAffectOne(ctx, tx, sqlStr, args, "document not found"); err != nil {
		return err
	}
	sqlStr, args, err = builder.BuildDelete("chunks", map[string]interface{}{"document_id": docID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []model.Chunk) error {
	for start := 0; start < len(chunks); start += chunkInsertBatch {
		end := start + chunkInsertBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		data := make([]map[string]interface{}, 0, end-start)
		for _, c := range chunks[start:end] {
			data = append(data, map[string]interface{}{
				"id":           c.ID,
				"document_id":  c.DocumentID,
				"seq":          c.Seq,
				"page":         c.Page,
				"start_offset": c.Start,
				"end_offset":   c.End,
				"content":      c.Text,
				"embedding":    pgvector.NewVector(c.Embedding),
			})
		}
		sqlStr, args, err := builder.BuildInsert("chunks", data)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return nil
}

func (r *DocumentRepo) Get(ctx context.Context, id string) (*model.Document, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *DocumentRepo) GetByFilename(ctx context.Context, filename string) (*model.Document, error) {
	return r.getOne(ctx, map[string]interface{}{"filename": filename})
}

func (r *DocumentRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var row documentRow
	if err := r.dbx.GetContext(ctx, &row, sqlStr, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.NotFound("document not found")
		}
		return nil, err
	}
	return row.toModel()
}

func (r *DocumentRepo) List(ctx context.Context, levels []access.Level) ([]model.Document, error) {
	docs := make([]model.Document, 0)
	if len(levels) == 0 {
		return docs, nil
	}
	where := map[string]interface{}{
		"classification in": levelArgs(levels),
		"_orderby":          "upload_date desc, id asc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var rows []documentRow
	if err := r.dbx.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, err
	}
	for i := range rows {
		doc, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (r *DocumentRepo) UpdateClassification(ctx context.Context, id string, level access.Level, mtime int64) error {
	update := map[string]interface{}{"classification": level.String(), "mtime": mtime}
	sqlStr, args, err := builder.BuildUpdate("documents", map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return execAffectOne(ctx, r.db, sqlStr, args, "document not found")
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return execAffectOne(ctx, r.db, sqlStr, args, "document not found")
}

func (r *DocumentRepo) ListChunks(ctx context.Context, docID string, page int) ([]model.Chunk, error) {
	where := map[string]interface{}{"document_id": docID, "_orderby": "seq asc"}
	if page > 0 {
		where["page"] = page
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, []string{
		"id", "document_id", "seq", "page", "start_offset", "end_offset", "content", "embedding",
	})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var rows []chunkRow
	if err := r.dbx.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, err
	}
	out := make([]model.Chunk, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}
