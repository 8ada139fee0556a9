package sqlitecoderepo

import (
	"database/sql"
	"time"

	"github.com/jrsteele09/go-vpn-auth-service/twofactor"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var _ twofactor.CodeRepo = (*SQLiteCodeRepo)(nil)

var NotFoundErr = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS sms_codes (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	code       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	used       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sms_codes_user ON sms_codes(user_id, created_at);
`

// SQLiteCodeRepo is a twofactor.CodeRepo backed by a SQLite database file.
type SQLiteCodeRepo struct {
	db *sql.DB
}

// New opens (and if necessary creates) the code database at path.
// Use ":memory:" for an ephemeral database in tests.
func New(path string) (*SQLiteCodeRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitecoderepo.New] sql.Open")
	}
	// SQLite allows one writer at a time; serialize access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlitecoderepo.New] create schema")
	}
	return &SQLiteCodeRepo{db: db}, nil
}

func (cr *SQLiteCodeRepo) Close() error {
	return cr.db.Close()
}

func (cr *SQLiteCodeRepo) Create(code *twofactor.Code) error {
	_, err := cr.db.Exec(`
		INSERT INTO sms_codes (id, user_id, code, created_at, expires_at, used)
		VALUES (?, ?, ?, ?, ?, ?)`,
		code.ID, code.UserID, code.Code, code.CreatedAt, code.ExpiresAt, code.Used)
	return errors.Wrap(err, "[SQLiteCodeRepo.Create]")
}

func (cr *SQLiteCodeRepo) LatestUnused(userID string) (*twofactor.Code, error) {
	row := cr.db.QueryRow(`
		SELECT id, user_id, code, created_at, expires_at, used
		FROM sms_codes WHERE user_id = ? AND used = 0
		ORDER BY created_at DESC LIMIT 1`, userID)

	var code twofactor.Code
	err := row.Scan(&code.ID, &code.UserID, &code.Code, &code.CreatedAt, &code.ExpiresAt, &code.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundErr
	}
	if err != nil {
		return nil, errors.Wrap(err, "[SQLiteCodeRepo.LatestUnused]")
	}
	return &code, nil
}

func (cr *SQLiteCodeRepo) MarkUsed(codeID string) error {
	res, err := cr.db.Exec(`UPDATE sms_codes SET used = 1 WHERE id = ?`, codeID)
	if err != nil {
		return errors.Wrap(err, "[SQLiteCodeRepo.MarkUsed]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[SQLiteCodeRepo.MarkUsed] RowsAffected")
	}
	if n == 0 {
		return NotFoundErr
	}
	return nil
}

func (cr *SQLiteCodeRepo) DeleteExpired(before time.Time) error {
	_, err := cr.db.Exec(`DELETE FROM sms_codes WHERE expires_at < ?`, before)
	return errors.Wrap(err, "[SQLiteCodeRepo.DeleteExpired]")
}
