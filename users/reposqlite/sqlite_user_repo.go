package sqliteuserrepo

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-vpn-auth-service/users"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var _ users.UserRepo = (*SQLiteUserRepo)(nil)

var NotFoundErr = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	phone_number  TEXT NOT NULL DEFAULT '',
	date_joined   TIMESTAMP,
	last_login    TIMESTAMP,
	two_factor    TEXT NOT NULL DEFAULT 'none',
	totp_secret   TEXT NOT NULL DEFAULT '',
	verified      INTEGER NOT NULL DEFAULT 0,
	blocked       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

// SQLiteUserRepo is a users.UserRepo backed by a SQLite database file.
type SQLiteUserRepo struct {
	db *sql.DB
}

// New opens (and if necessary creates) the user database at path.
// Use ":memory:" for an ephemeral database in tests.
func New(path string) (*SQLiteUserRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[sqliteuserrepo.New] sql.Open")
	}
	// SQLite allows one writer at a time; serialize access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqliteuserrepo.New] create schema")
	}
	return &SQLiteUserRepo{db: db}, nil
}

func (ur *SQLiteUserRepo) Close() error {
	return ur.db.Close()
}

func (ur *SQLiteUserRepo) Upsert(user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}
	_, err := ur.db.Exec(`
		INSERT INTO users (id, email, username, password_hash, first_name, last_name,
			phone_number, date_joined, last_login, two_factor, totp_secret, verified, blocked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email=excluded.email, username=excluded.username, password_hash=excluded.password_hash,
			first_name=excluded.first_name, last_name=excluded.last_name,
			phone_number=excluded.phone_number, last_login=excluded.last_login,
			two_factor=excluded.two_factor, totp_secret=excluded.totp_secret,
			verified=excluded.verified, blocked=excluded.blocked`,
		user.ID, user.Email, user.Username, user.PasswordHash, user.FirstName, user.LastName,
		user.PhoneNumber, user.DateJoined, user.LastLogin, string(user.TwoFactor), user.TOTPSecret,
		user.Verified, user.Blocked)
	return errors.Wrap(err, "[SQLiteUserRepo.Upsert]")
}

func (ur *SQLiteUserRepo) Delete(username string) error {
	_, err := ur.db.Exec(`DELETE FROM users WHERE username = ?`, username)
	return errors.Wrap(err, "[SQLiteUserRepo.Delete]")
}

func (ur *SQLiteUserRepo) GetByUsername(username string) (*users.User, error) {
	return ur.getWhere(`username = ?`, username)
}

func (ur *SQLiteUserRepo) GetByID(id string) (*users.User, error) {
	return ur.getWhere(`id = ?`, id)
}

func (ur *SQLiteUserRepo) List(offset, limit int) ([]*users.User, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := ur.db.Query(`
		SELECT id, email, username, password_hash, first_name, last_name, phone_number,
			date_joined, last_login, two_factor, totp_secret, verified, blocked
		FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "[SQLiteUserRepo.List] query")
	}
	defer rows.Close()

	userList := make([]*users.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[SQLiteUserRepo.List] scan")
		}
		userList = append(userList, user)
	}
	return userList, errors.Wrap(rows.Err(), "[SQLiteUserRepo.List] rows")
}

func (ur *SQLiteUserRepo) SetBlocked(username string, blocked bool) error {
	return ur.setFlag(`UPDATE users SET blocked = ? WHERE username = ?`, blocked, username)
}

func (ur *SQLiteUserRepo) SetVerified(username string, verified bool) error {
	return ur.setFlag(`UPDATE users SET verified = ? WHERE username = ?`, verified, username)
}

func (ur *SQLiteUserRepo) SetLastLogin(username string) error {
	res, err := ur.db.Exec(`UPDATE users SET last_login = ? WHERE username = ?`, time.Now(), username)
	if err != nil {
		return errors.Wrap(err, "[SQLiteUserRepo.SetLastLogin]")
	}
	return affectedOrNotFound(res)
}

func (ur *SQLiteUserRepo) setFlag(query string, value bool, username string) error {
	res, err := ur.db.Exec(query, value, username)
	if err != nil {
		return errors.Wrap(err, "[SQLiteUserRepo.setFlag]")
	}
	return affectedOrNotFound(res)
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[SQLiteUserRepo] RowsAffected")
	}
	if n == 0 {
		return NotFoundErr
	}
	return nil
}

func (ur *SQLiteUserRepo) getWhere(where string, arg any) (*users.User, error) {
	row := ur.db.QueryRow(`
		SELECT id, email, username, password_hash, first_name, last_name, phone_number,
			date_joined, last_login, two_factor, totp_secret, verified, blocked
		FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundErr
	}
	if err != nil {
		return nil, errors.Wrap(err, "[SQLiteUserRepo.getWhere]")
	}
	return user, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*users.User, error) {
	var (
		user       users.User
		twoFactor  string
		dateJoined sql.NullTime
		lastLogin  sql.NullTime
	)
	err := s.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.PhoneNumber, &dateJoined, &lastLogin,
		&twoFactor, &user.TOTPSecret, &user.Verified, &user.Blocked)
	if err != nil {
		return nil, err
	}
	user.TwoFactor = users.TwoFactorMethod(twoFactor)
	user.DateJoined = dateJoined.Time
	user.LastLogin = lastLogin.Time
	return &user, nil
}
