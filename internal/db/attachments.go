package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ALT-F4-LLC/ferry/internal/model"
)

const attachmentColumns = `a.id, a.uid, a.issue_id, i.key, a.filename, a.file_path, a.size, a.document`

// DeleteAttachments removes every attachment row and returns how many were deleted.
func DeleteAttachments(db *sql.DB) (int64, error) {
	res, err := db.Exec(`DELETE FROM attachments`)
	if err != nil {
		return 0, fmt.Errorf("deleting attachments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CreateAttachment inserts an attachment row and returns its ID. The owning
// issue must exist.
func CreateAttachment(db *sql.DB, a *model.Attachment) (int, error) {
	res, err := db.Exec(
		`INSERT INTO attachments (uid, issue_id, filename, file_path, size, document)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.UID, a.IssueID, a.Filename, a.Path, a.Size, nullIfEmpty(a.Document),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting attachment %d: %w", a.UID, err)
	}

	id64, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	a.ID = int(id64)
	return a.ID, nil
}

// SetAttachmentSize records the stored content size once the download completes.
func SetAttachmentSize(db *sql.DB, id int, size int64) error {
	res, err := db.Exec(`UPDATE attachments SET size = ? WHERE id = ?`, size, id)
	if err != nil {
		return fmt.Errorf("updating attachment size: %w", err)
	}
	return expectOneRow(res)
}

// ListAttachments returns all attachments whose filename contains search
// (all of them when search is empty), ordered by owning issue number.
func ListAttachments(db *sql.DB, search string) ([]*model.Attachment, error) {
	query := `SELECT ` + attachmentColumns + `
		 FROM attachments a JOIN issues i ON i.id = a.issue_id`
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		query += ` WHERE a.filename LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(s)+"%")
	}
	query += ` ORDER BY i.number, a.uid`

	return queryAttachments(db, query, args...)
}

// ListIssueAttachments returns the attachments of a single issue.
func ListIssueAttachments(db *sql.DB, issueID int) ([]*model.Attachment, error) {
	return queryAttachments(db,
		`SELECT `+attachmentColumns+`
		 FROM attachments a JOIN issues i ON i.id = a.issue_id
		 WHERE a.issue_id = ? ORDER BY a.uid`, issueID)
}

// AttachmentStats returns the number of stored attachments and their total size.
func AttachmentStats(db *sql.DB) (count int, totalSize int64, err error) {
	err = db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM attachments`).Scan(&count, &totalSize)
	if err != nil {
		return 0, 0, fmt.Errorf("counting attachments: %w", err)
	}
	return count, totalSize, nil
}

func queryAttachments(db *sql.DB, query string, args ...any) ([]*model.Attachment, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*model.Attachment
	for rows.Next() {
		a, err := scanAttachmentFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning attachment row: %w", err)
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attachment rows: %w", err)
	}
	return attachments, nil
}

func scanAttachmentFrom(s scanner) (*model.Attachment, error) {
	var a model.Attachment
	var document sql.NullString

	err := s.Scan(&a.ID, &a.UID, &a.IssueID, &a.IssueKey, &a.Filename, &a.Path, &a.Size, &document)
	if err != nil {
		return nil, err
	}
	if document.Valid {
		a.Document = json.RawMessage(document.String)
	}
	return &a, nil
}
