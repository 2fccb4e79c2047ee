package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

type IngestJobRepo struct {
	db *sql.DB
}

func NewIngestJobRepo(db *sql.DB) *IngestJobRepo {
	return &IngestJobRepo{db: db}
}

func (r *IngestJobRepo) Create(ctx context.Context, job *model.IngestJob) error {
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO ingest_jobs (id, user_id, filename, state, document_id, error_kind, error_message, result_json, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.Filename,
		string(job.State),
		job.DocumentID,
		job.ErrorKind,
		job.ErrorMessage,
		resultJSON,
		job.Ctime,
		job.Mtime,
	)
	return err
}

func (r *IngestJobRepo) Get(ctx context.Context, id string) (*model.IngestJob, error) {
	const query = `
		SELECT id, user_id, filename, state, document_id, error_kind, error_message, result_json, ctime, mtime
		FROM ingest_jobs
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	var job model.IngestJob
	var state, resultJSON string
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Filename,
		&state,
		&job.DocumentID,
		&job.ErrorKind,
		&job.ErrorMessage,
		&resultJSON,
		&job.Ctime,
		&job.Mtime,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.NotFound("ingest job not found")
		}
		return nil, err
	}
	job.State = model.IngestState(state)
	if resultJSON != "" {
		var result model.IngestResult
		if err := json.Unmarshal([]byte(resultJSON), &result); err == nil {
			job.Result = &result
		}
	}
	return &job, nil
}

func (r *IngestJobRepo) Update(ctx context.Context, job *model.IngestJob) error {
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}
	const query = `
		UPDATE ingest_jobs
		SET state = $1,
			document_id = $2,
			error_kind = $3,
			error_message = $4,
			result_json = $5,
			mtime = $6
		WHERE id = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		string(job.State),
		job.DocumentID,
		job.ErrorKind,
		job.ErrorMessage,
		resultJSON,
		job.Mtime,
		job.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.NotFound("ingest job not found")
	}
	return nil
}

func (r *IngestJobRepo) DeleteFinishedBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM ingest_jobs WHERE mtime < $1 AND state IN ($2, $3)`
	res, err := r.db.ExecContext(ctx, query, cutoff, string(model.IngestReady), string(model.IngestFailed))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func marshalResult(result *model.IngestResult) (string, error) {
	if result == nil {
		return "", nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
