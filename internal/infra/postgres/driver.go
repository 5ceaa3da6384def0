package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/steward-app/steward/internal/docstore"
)

// Driver implements docstore.Driver over a documents table. Equality
// filters push down as JSONB containment; ordering, range filters,
// cursors and limits evaluate in process through the shared evaluator
// so every backend agrees on query semantics.
type Driver struct {
	db *DB
}

var _ docstore.Driver = (*Driver)(nil)

// NewDriver creates a document-store driver over an established DB.
func NewDriver(db *DB) *Driver {
	return &Driver{db: db}
}

func (d *Driver) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var raw []byte
	err := d.db.QueryRowxContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get", err)
	}
	return decodeDoc(id, raw)
}

func (d *Driver) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return docstore.NewError("set", docstore.KindInvalidArgument, err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, raw,
	)
	if err != nil {
		return classify("set", err)
	}
	return nil
}

func (d *Driver) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return docstore.NewError("update", docstore.KindInvalidArgument, err)
	}
	res, err := d.db.ExecContext(ctx, `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2`,
		collection, id, raw,
	)
	if err != nil {
		return classify("update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify("update", err)
	}
	if affected == 0 {
		return docstore.Errorf("update", docstore.KindNotFound,
			"document %s/%s does not exist", collection, id)
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, collection, id string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return classify("delete", err)
	}
	return nil
}

func (d *Driver) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	query := `SELECT id, data FROM documents WHERE collection = $1`
	args := []any{collection}

	// Push equality filters down as containment so the GIN index can
	// narrow the scan; the evaluator re-checks everything anyway.
	for _, f := range q.Filters {
		if f.Op != docstore.OpEqual {
			continue
		}
		contains, err := json.Marshal(map[string]any{f.Field: f.Value})
		if err != nil {
			continue
		}
		args = append(args, contains)
		query += fmt.Sprintf(" AND data @> $%d::jsonb", len(args))
	}

	rows, err := d.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, classify("query", err)
		}
		doc, err := decodeDoc(id, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query", err)
	}
	return docstore.EvaluateQuery(docs, q)
}

// ApplyBatch runs every op inside one transaction.
func (d *Driver) ApplyBatch(ctx context.Context, ops []docstore.BatchOp) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range ops {
		switch op.Type {
		case docstore.BatchSet:
			raw, err := json.Marshal(op.Fields)
			if err != nil {
				return docstore.NewError("batch", docstore.KindInvalidArgument, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO documents (collection, id, data)
				VALUES ($1, $2, $3)
				ON CONFLICT (collection, id)
				DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
				op.Collection, op.ID, raw,
			)
			if err != nil {
				return classify("batch", err)
			}
		case docstore.BatchUpdate:
			raw, err := json.Marshal(op.Fields)
			if err != nil {
				return docstore.NewError("batch", docstore.KindInvalidArgument, err)
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE documents
				SET data = data || $3::jsonb, updated_at = now()
				WHERE collection = $1 AND id = $2`,
				op.Collection, op.ID, raw,
			)
			if err != nil {
				return classify("batch", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return classify("batch", err)
			}
			if affected == 0 {
				return docstore.Errorf("batch", docstore.KindNotFound,
					"document %s/%s does not exist", op.Collection, op.ID)
			}
		case docstore.BatchDelete:
			_, err := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection = $1 AND id = $2`,
				op.Collection, op.ID,
			)
			if err != nil {
				return classify("batch", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("batch", err)
	}
	return nil
}

func decodeDoc(id string, raw []byte) (*docstore.Document, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, docstore.NewError("get", docstore.KindUnknown,
			fmt.Errorf("corrupt document %s: %w", id, err))
	}
	return &docstore.Document{ID: id, Fields: fields}, nil
}

// classify maps PostgreSQL error codes onto the store taxonomy.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return docstore.NewError(op, docstore.KindAlreadyExists, err)
		case "28000", "28P01": // invalid authorization, invalid password
			return docstore.NewError(op, docstore.KindUnauthenticated, err)
		case "42501": // insufficient_privilege
			return docstore.NewError(op, docstore.KindPermissionDenied, err)
		case "22023", "22P02": // invalid parameter, invalid text representation
			return docstore.NewError(op, docstore.KindInvalidArgument, err)
		}
	}
	return docstore.NewError(op, docstore.KindUnavailable, err)
}
