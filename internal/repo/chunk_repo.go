package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
)

type candidateRow struct {
	chunkRow
	Filename       string `db:"filename"`
	Classification string `db:"classification"`
	UploadDate     int64  `db:"upload_date"`
}

type ChunkRepo struct {
	dbx *sqlx.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{dbx: sqlx.NewDb(db, "postgres")}
}

// Candidates filters by classification inside the query. When a query
// vector is given the rows are pre-trimmed with the pgvector cosine
// distance operator.
func (r *ChunkRepo) Candidates(ctx context.Context, q CandidateQuery) ([]model.ChunkCandidate, error) {
	out := make([]model.ChunkCandidate, 0)
	if len(q.Levels) == 0 {
		return out, nil
	}
	query := `
		SELECT c.id, c.document_id, c.seq, c.page, c.start_offset, c.end_offset, c.content, c.embedding,
			d.filename, d.classification, d.upload_date
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.classification = ANY(?)`
	args := []interface{}{pq.Array(access.LevelNames(q.Levels))}
	if q.Filename != "" {
		query += ` AND d.filename = ?`
		args = append(args, q.Filename)
	}
	if len(q.Pages) > 0 {
		pages := make([]int64, 0, len(q.Pages))
		for _, p := range q.Pages {
			pages = append(pages, int64(p))
		}
		query += ` AND c.page = ANY(?)`
		args = append(args, pq.Array(pages))
	}
	if len(q.Vector) > 0 && q.Limit > 0 {
		query += ` ORDER BY c.embedding <=> ? LIMIT ?`
		args = append(args, pgvector.NewVector(q.Vector), q.Limit)
	}
	query = r.dbx.Rebind(query)
	var rows []candidateRow
	if err := r.dbx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	for i := range rows {
		level, err := access.ParseLevel(rows[i].Classification)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ChunkCandidate{
			Chunk:          rows[i].chunkRow.toModel(),
			Filename:       rows[i].Filename,
			Classification: level,
			UploadDate:     rows[i].UploadDate,
		})
	}
	return out, nil
}
