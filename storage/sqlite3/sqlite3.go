package sqlite3

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/niclabs/keychain-bridge/storage"
)

// DB is a wrapper over a sql.DB object, complying with storage
// interface.
type DB struct {
	*sql.DB
}

// GetDatabase opens the database at path. InitStorage must be called
// before using it.
func GetDatabase(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// a single connection keeps in-memory databases shared
	db.SetMaxOpenConns(1)
	return &DB{DB: db}, nil
}

// Creates the tables if they don't exist yet.
func (db *DB) InitStorage() error {
	for _, stmt := range CreateStmts {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "create tables")
		}
	}
	return nil
}

func (db *DB) SaveToken(token *storage.Token) error {
	if token == nil || token.ID == "" {
		return errors.New("token without id")
	}
	_, err := db.Exec(InsertTokenQuery, token.ID, token.Label)
	return errors.Wrapf(err, "save token %s", token.ID)
}

func (db *DB) GetToken(id string) (*storage.Token, error) {
	stmt, err := db.Prepare(GetTokenQuery)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer stmt.Close()
	token := &storage.Token{ID: id}
	if err := stmt.QueryRow(id).Scan(&token.Label); err != nil {
		return nil, errors.Wrapf(err, "get token %s", id)
	}
	return token, nil
}

func (db *DB) TokenIDs() ([]string, error) {
	rows, err := db.Query(GetTokenIDsQuery)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.WithStack(err)
		}
		ids = append(ids, id)
	}
	return ids, errors.WithStack(rows.Err())
}

func (db *DB) RemoveToken(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := tx.Exec(DeleteIdentitiesQuery, id); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "remove identities of %s", id)
	}
	if _, err := tx.Exec(DeleteTokenQuery, id); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "remove token %s", id)
	}
	return errors.WithStack(tx.Commit())
}

func (db *DB) SaveIdentity(identity *storage.Identity) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.WithStack(err)
	}
	// Preparing statements
	maxStmt, err := tx.Prepare(GetMaxIdentityIndexQuery)
	if err != nil {
		_ = tx.Rollback()
		return errors.WithStack(err)
	}
	defer maxStmt.Close()
	insertStmt, err := tx.Prepare(InsertIdentityQuery)
	if err != nil {
		_ = tx.Rollback()
		return errors.WithStack(err)
	}
	defer insertStmt.Close()

	var last int
	if err := maxStmt.QueryRow(identity.TokenID).Scan(&last); err != nil {
		_ = tx.Rollback()
		return errors.WithStack(err)
	}
	identity.Index = last + 1
	if _, err := insertStmt.Exec(identity.TokenID, identity.Index, identity.Label,
		identity.Certificate, identity.PrivateKey); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "save identity %q", identity.Label)
	}
	// Committing
	return errors.WithStack(tx.Commit())
}

func (db *DB) GetIdentities(tokenID string) ([]*storage.Identity, error) {
	stmt, err := db.Prepare(GetIdentitiesQuery)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer stmt.Close()
	rows, err := stmt.Query(tokenID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	identities := make([]*storage.Identity, 0)
	for rows.Next() {
		identity := &storage.Identity{TokenID: tokenID}
		var label sql.NullString
		if err := rows.Scan(&identity.Index, &label, &identity.Certificate, &identity.PrivateKey); err != nil {
			return nil, errors.WithStack(err)
		}
		identity.Label = label.String
		identities = append(identities, identity)
	}
	return identities, errors.WithStack(rows.Err())
}

func (db *DB) AddTrustedCertificate(der []byte) error {
	sum := sha256.Sum256(der)
	_, err := db.Exec(InsertTrustedCertQuery, hex.EncodeToString(sum[:]), der)
	return errors.Wrap(err, "add trusted certificate")
}

func (db *DB) GetTrustedCertificates() ([][]byte, error) {
	rows, err := db.Query(GetTrustedCertsQuery)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	certs := make([][]byte, 0)
	for rows.Next() {
		var der []byte
		if err := rows.Scan(&der); err != nil {
			return nil, errors.WithStack(err)
		}
		certs = append(certs, der)
	}
	return certs, errors.WithStack(rows.Err())
}

func (db *DB) CloseStorage() error {
	return errors.WithStack(db.Close())
}
