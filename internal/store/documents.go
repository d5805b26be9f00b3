package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document is the registry entry for one uploaded file. DocID is the value
// stored in every vector payload of the document.
type Document struct {
	ID           string    `json:"id"`
	DocID        string    `json:"doc_id"`
	Filename     string    `json:"filename"`
	SizeBytes    int64     `json:"size_bytes"`
	PageCount    int       `json:"page_count"`
	RAGProcessed bool      `json:"rag_processed"`
	CreatedAt    time.Time `json:"created_at"`
}

const documentColumns = `id, doc_id, filename, size_bytes, page_count, rag_processed, created_at`

// AddDocument records a document. ID and CreatedAt are assigned here.
// A second record for the same DocID returns ErrDuplicate.
func (s *SQLiteStore) AddDocument(ctx context.Context, d Document) (Document, error) {
	d.ID = uuid.NewString()
	d.CreatedAt = s.stamp()
	const q = `INSERT INTO documents (` + documentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, d.ID, d.DocID, d.Filename, d.SizeBytes, d.PageCount, d.RAGProcessed,
		d.CreatedAt.UnixMilli())
	if err != nil {
		if isUnique(err) {
			return Document{}, fmt.Errorf("store: add document %s: %w", d.DocID, ErrDuplicate)
		}
		return Document{}, fmt.Errorf("store: add document: %w", err)
	}
	return d, nil
}

// Documents lists every recorded document, oldest first.
func (s *SQLiteStore) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: documents scan: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: documents rows: %w", err)
	}
	return docs, nil
}

// DocumentByDocID returns the record for a vector document id.
func (s *SQLiteStore) DocumentByDocID(ctx context.Context, docID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id = ?`, docID)
	d, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("store: document: %w", err)
	}
	return d, nil
}

// DocumentByFilename returns the most recent record with the given filename.
func (s *SQLiteStore) DocumentByFilename(ctx context.Context, filename string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE filename = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, filename)
	d, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("store: document by filename: %w", err)
	}
	return d, nil
}

// PutDocument records d, or refreshes the existing record with the same
// DocID in place. A refreshed record keeps its ID and CreatedAt.
func (s *SQLiteStore) PutDocument(ctx context.Context, d Document) (Document, error) {
	const q = `INSERT INTO documents (` + documentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			filename = excluded.filename,
			size_bytes = excluded.size_bytes,
			page_count = excluded.page_count,
			rag_processed = excluded.rag_processed`
	_, err := s.db.ExecContext(ctx, q, uuid.NewString(), d.DocID, d.Filename, d.SizeBytes, d.PageCount,
		d.RAGProcessed, s.stamp().UnixMilli())
	if err != nil {
		return Document{}, fmt.Errorf("store: put document %s: %w", d.DocID, err)
	}
	return s.DocumentByDocID(ctx, d.DocID)
}

// DeleteDocument removes the record for a vector document id.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, docID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	return affected(res, "delete document")
}

func scanDocument(sc scanner) (Document, error) {
	var d Document
	var created int64
	if err := sc.Scan(&d.ID, &d.DocID, &d.Filename, &d.SizeBytes, &d.PageCount, &d.RAGProcessed, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	d.CreatedAt = time.UnixMilli(created).UTC()
	return d, nil
}
