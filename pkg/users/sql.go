package users

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS mesh_users (
	username TEXT PRIMARY KEY,
	pin      TEXT NOT NULL
)`

// OpenSQL opens a credential database file.
func OpenSQL(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open credential db %s", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create credential table")
	}
	return db, nil
}

// LoadSQL reads the whole credential table into memory.
func LoadSQL(db *sqlx.DB) (*StaticTable, error) {
	var creds []Credential
	if err := db.Select(&creds, `SELECT username, pin FROM mesh_users ORDER BY username`); err != nil {
		return nil, errors.Wrap(err, "load credentials")
	}
	return NewStaticTable(creds), nil
}

// WriteSQL replaces the table contents with creds.
func WriteSQL(db *sqlx.DB, creds []Credential) error {
	tx, err := db.Beginx()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM mesh_users`); err != nil {
		return errors.Wrap(err, "clear credentials")
	}
	for _, c := range creds {
		if _, err := tx.NamedExec(`INSERT OR REPLACE INTO mesh_users (username, pin) VALUES (:username, :pin)`, c); err != nil {
			return errors.Wrapf(err, "insert %s", c.Name)
		}
	}
	return errors.Wrap(tx.Commit(), "commit credentials")
}
