package sqlite3

const CreateTokenTable = `
    CREATE TABLE IF NOT EXISTS token (
        id		TEXT PRIMARY KEY,
        label	TEXT
    )`

const InsertTokenQuery = `
	INSERT OR REPLACE INTO token (id, label) VALUES (?, ?)
`

const GetTokenQuery = `
        SELECT label
        FROM token
        WHERE id = ?
`

const GetTokenIDsQuery = `
	SELECT id FROM token ORDER BY rowid
`

const DeleteTokenQuery = `
	DELETE FROM token WHERE id = ?
`

const CreateIdentityTable = `
    CREATE TABLE IF NOT EXISTS identity (
        token_id	TEXT,
        idx			INTEGER,
        label		TEXT,
        cert		BLOB,
        key			BLOB,
        PRIMARY KEY (token_id, idx)
    )`

const InsertIdentityQuery = `
	INSERT INTO identity (token_id, idx, label, cert, key)
	VALUES (?, ?, ?, ?, ?)
`

const GetMaxIdentityIndexQuery = `
	SELECT COALESCE(MAX(idx), -1) FROM identity WHERE token_id = ?
`

const GetIdentitiesQuery = `
        SELECT idx, label, cert, key
        FROM identity
        WHERE token_id = ?
        ORDER BY idx
`

const DeleteIdentitiesQuery = `
	DELETE FROM identity WHERE token_id = ?
`

const CreateTrustedCertTable = `
    CREATE TABLE IF NOT EXISTS trusted_cert (
        hash	TEXT PRIMARY KEY,
        cert	BLOB
    )`

const InsertTrustedCertQuery = `
	INSERT OR IGNORE INTO trusted_cert (hash, cert) VALUES (?, ?)
`

const GetTrustedCertsQuery = `
	SELECT cert FROM trusted_cert ORDER BY rowid
`

var CreateStmts = []string{CreateTokenTable, CreateIdentityTable, CreateTrustedCertTable}
