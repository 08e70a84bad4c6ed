// Package mysqlfs implements a MySQL-backed content-addressed blob store:
// treemerge.ObjectStore's Blob/AddBlob half, backed by a single table keyed
// by blob id rather than a directory tree of named files. A blob has no
// parent directory or name of its own — that structure belongs to
// treemerge's TreeEntry/TreeChange, not to blob storage — so the schema is
// flat: id, content, size.
package mysqlfs

import (
	"crypto/sha256"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/vcsmerge/merge3/treemerge"
)

// blobRow is tagged for sqlx's StructScan/Get, one row per stored object.
type blobRow struct {
	ID      string `db:"id"`
	Content []byte `db:"content"`
	Size    int64  `db:"size"`
}

// Store is a MySQL-backed content-addressed blob store, usable as the blob
// half of a treemerge.ObjectStore (pair it with a tree-diffing
// implementation, such as package gitmerge's, for the full interface).
type Store struct {
	db    *sqlx.DB
	table string
}

// Open connects to dsn (driver "mysql") and ensures table exists.
func Open(dsn, table string) (*Store, error) {
	dbPool, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "mysqlfs: opening connection")
	}
	return New(dbPool, table)
}

// New wraps an already-open *sql.DB, promoting it to *sqlx.DB internally,
// and creates table if it does not already exist.
func New(dbPool *sql.DB, table string) (*Store, error) {
	if table == "" {
		return nil, errors.New("mysqlfs: table name can't be empty")
	}

	db := sqlx.NewDb(dbPool, "mysql")

	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
		(id CHAR(64) NOT NULL PRIMARY KEY,
			content LONGBLOB NOT NULL,
			size BIGINT NOT NULL)`, table))
	if err != nil {
		return nil, errors.Wrapf(err, "mysqlfs: creating table %s", table)
	}

	return &Store{db: db, table: table}, nil
}

// Blob implements treemerge.ObjectStore.
func (s *Store) Blob(id treemerge.BlobID) ([]byte, error) {
	var row blobRow
	err := s.db.Get(&row, fmt.Sprintf("SELECT id, content, size FROM %s WHERE id = ?", s.table), id.String())
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("mysqlfs: no blob with id %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "mysqlfs: reading blob")
	}
	return row.Content, nil
}

// AddBlob implements treemerge.ObjectStore: the id is the SHA-256 digest of
// data, so inserting the same content twice is a harmless no-op.
func (s *Store) AddBlob(data []byte) (treemerge.BlobID, error) {
	sum := sha256.Sum256(data)
	id := treemerge.NewBlobID(sum[:])
	query := fmt.Sprintf("INSERT IGNORE INTO %s (id, content, size) VALUES (?, ?, ?)", s.table)
	if _, err := s.db.Exec(query, id.String(), data, len(data)); err != nil {
		return treemerge.BlobID{}, errors.Wrap(err, "mysqlfs: storing blob")
	}
	return id, nil
}
