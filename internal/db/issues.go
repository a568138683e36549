package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ALT-F4-LLC/ferry/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// scanner abstracts *sql.Row and *sql.Rows for scanning a single row.
type scanner interface {
	Scan(dest ...any) error
}

const issueColumns = `id, uid, key, number, link, uid_dest, link_dest, document`

// ListOptions holds filtering and pagination options for ListIssues.
type ListOptions struct {
	Search     string // substring of the key, or an exact destination id
	LoadedOnly bool   // only issues already created on the destination
	Limit      int    // max results
	Offset     int    // for pagination
}

// ReplaceIssues deletes every stored issue (and, by cascade, its attachments)
// and inserts the given ones in a single transaction. Number is derived from
// the key when it is zero.
func ReplaceIssues(db *sql.DB, issues []*model.Issue) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM issues`); err != nil {
		return fmt.Errorf("clearing issues: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO issues (uid, key, number, link) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		if issue.Number == 0 {
			_, n, err := model.ParseKey(issue.Key)
			if err != nil {
				return err
			}
			issue.Number = n
		}

		res, err := stmt.Exec(issue.UID, issue.Key, issue.Number, issue.Link)
		if err != nil {
			return fmt.Errorf("inserting issue %s: %w", issue.Key, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting last insert id: %w", err)
		}
		issue.ID = int(id)
	}

	return tx.Commit()
}

// SaveIssueDocument stores the full source representation of an issue.
func SaveIssueDocument(db *sql.DB, id int, doc json.RawMessage) error {
	res, err := db.Exec(`UPDATE issues SET document = ? WHERE id = ?`, string(doc), id)
	if err != nil {
		return fmt.Errorf("saving issue document: %w", err)
	}
	return expectOneRow(res)
}

// SetIssueDestination records the identity the issue was created with on the
// destination instance.
func SetIssueDestination(db *sql.DB, id int, destUID int64, destLink string) error {
	res, err := db.Exec(
		`UPDATE issues SET uid_dest = ?, link_dest = ? WHERE id = ?`,
		destUID, destLink, id,
	)
	if err != nil {
		return fmt.Errorf("setting issue destination: %w", err)
	}
	return expectOneRow(res)
}

// GetIssue retrieves an issue by its local row ID.
func GetIssue(db *sql.DB, id int) (*model.Issue, error) {
	return scanIssue(db.QueryRow(`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id))
}

// GetIssueByKey retrieves an issue by its source key.
func GetIssueByKey(db *sql.DB, key string) (*model.Issue, error) {
	return scanIssue(db.QueryRow(`SELECT `+issueColumns+` FROM issues WHERE key = ?`, key))
}

// GetIssueByNumber retrieves the issue whose key suffix is n.
func GetIssueByNumber(db *sql.DB, n int) (*model.Issue, error) {
	return scanIssue(db.QueryRow(`SELECT `+issueColumns+` FROM issues WHERE number = ?`, n))
}

// ListIssues retrieves issues matching the given filters, ordered by key number.
func ListIssues(db *sql.DB, opts ListOptions) ([]*model.Issue, error) {
	var (
		whereClauses []string
		args         []any
	)

	if s := strings.TrimSpace(opts.Search); s != "" {
		clause := `key LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(s)+"%")
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			clause = "(" + clause + " OR uid_dest = ?)"
			args = append(args, n)
		}
		whereClauses = append(whereClauses, clause)
	}
	if opts.LoadedOnly {
		whereClauses = append(whereClauses, "uid_dest IS NOT NULL")
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY number ASC"

	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	var issues []*model.Issue
	for rows.Next() {
		issue, err := scanIssueFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue row: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating issue rows: %w", err)
	}

	return issues, nil
}

// MaxIssueNumber returns the highest key suffix among stored issues, or 0
// when there are none.
func MaxIssueNumber(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COALESCE(MAX(number), 0) FROM issues`).Scan(&n); err != nil {
		return 0, fmt.Errorf("querying max issue number: %w", err)
	}
	return n, nil
}

// MaxLoadedIssueNumber returns the highest key suffix among issues already
// created on the destination, or 0 when there are none.
func MaxLoadedIssueNumber(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow(
		`SELECT COALESCE(MAX(number), 0) FROM issues WHERE uid_dest IS NOT NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("querying max loaded issue number: %w", err)
	}
	return n, nil
}

// CountIssues returns the total number of stored issues and how many of them
// have been created on the destination.
func CountIssues(db *sql.DB) (total, loaded int, err error) {
	err = db.QueryRow(
		`SELECT COUNT(*), COUNT(uid_dest) FROM issues`,
	).Scan(&total, &loaded)
	if err != nil {
		return 0, 0, fmt.Errorf("counting issues: %w", err)
	}
	return total, loaded, nil
}

// CountIssueDocuments returns how many stored issues have their full
// document fetched.
func CountIssueDocuments(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(document) FROM issues`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting issue documents: %w", err)
	}
	return n, nil
}

func scanIssueFrom(s scanner) (*model.Issue, error) {
	var i model.Issue
	var destUID sql.NullInt64
	var document sql.NullString

	err := s.Scan(&i.ID, &i.UID, &i.Key, &i.Number, &i.Link, &destUID, &i.DestLink, &document)
	if err != nil {
		return nil, err
	}

	if destUID.Valid {
		v := destUID.Int64
		i.DestUID = &v
	}
	if document.Valid {
		i.Document = json.RawMessage(document.String)
	}

	return &i, nil
}

// scanIssue scans a single issue from a *sql.Row, mapping sql.ErrNoRows to ErrNotFound.
func scanIssue(row *sql.Row) (*model.Issue, error) {
	issue, err := scanIssueFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning issue: %w", err)
	}
	return issue, nil
}

// expectOneRow returns ErrNotFound when an UPDATE matched nothing.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// nullIfEmpty converts an empty document to SQL NULL.
func nullIfEmpty(doc json.RawMessage) any {
	if len(doc) == 0 {
		return nil
	}
	return string(doc)
}
