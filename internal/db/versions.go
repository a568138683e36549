package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ALT-F4-LLC/ferry/internal/model"
)

// ReplaceVersions deletes every stored version and inserts the given ones in
// a single transaction.
func ReplaceVersions(db *sql.DB, versions []*model.Version) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM versions`); err != nil {
		return fmt.Errorf("clearing versions: %w", err)
	}

	for _, v := range versions {
		res, err := tx.Exec(
			`INSERT INTO versions (uid, name, link, document) VALUES (?, ?, ?, ?)`,
			v.UID, v.Name, v.Link, nullIfEmpty(v.Document),
		)
		if err != nil {
			return fmt.Errorf("inserting version %q: %w", v.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting last insert id: %w", err)
		}
		v.ID = int(id)
	}

	return tx.Commit()
}

// ListVersions returns all stored versions in insertion order, which is the
// order the source reported them.
func ListVersions(db *sql.DB) ([]*model.Version, error) {
	rows, err := db.Query(`SELECT id, uid, name, link, document FROM versions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var versions []*model.Version
	for rows.Next() {
		var v model.Version
		var document sql.NullString
		if err := rows.Scan(&v.ID, &v.UID, &v.Name, &v.Link, &document); err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}
		if document.Valid {
			v.Document = json.RawMessage(document.String)
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version rows: %w", err)
	}
	return versions, nil
}

// CountVersions returns the number of stored versions.
func CountVersions(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM versions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting versions: %w", err)
	}
	return n, nil
}
