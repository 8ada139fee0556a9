package sqlitecompanyrepo

import (
	"database/sql"
	"encoding/json"

	"github.com/jrsteele09/go-vpn-auth-service/company"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var _ company.Repo = (*SQLiteCompanyRepo)(nil)

var NotFoundErr = errors.New("not found")

// Directors, shareholders and field diffs are stored as JSON documents.
// They are only ever read back whole, never queried by field.
const schema = `
CREATE TABLE IF NOT EXISTS companies (
	pid                 TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	registration_number TEXT NOT NULL DEFAULT '',
	country             TEXT NOT NULL DEFAULT '',
	address             TEXT NOT NULL DEFAULT '',
	directors           TEXT NOT NULL DEFAULT '[]',
	shareholders        TEXT NOT NULL DEFAULT '[]',
	created_at          TIMESTAMP,
	updated_at          TIMESTAMP
);
CREATE TABLE IF NOT EXISTS change_logs (
	id          TEXT PRIMARY KEY,
	change_type TEXT NOT NULL,
	object_type TEXT NOT NULL,
	object_pid  TEXT NOT NULL,
	changes     TEXT NOT NULL DEFAULT '{}',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_logs_object ON change_logs(object_pid, created_at);
`

// SQLiteCompanyRepo is a company.Repo backed by a SQLite database file.
type SQLiteCompanyRepo struct {
	db *sql.DB
}

// New opens (and if necessary creates) the company database at path.
// Use ":memory:" for an ephemeral database in tests.
func New(path string) (*SQLiteCompanyRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitecompanyrepo.New] sql.Open")
	}
	// SQLite allows one writer at a time; serialize access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlitecompanyrepo.New] create schema")
	}
	return &SQLiteCompanyRepo{db: db}, nil
}

func (cr *SQLiteCompanyRepo) Close() error {
	return cr.db.Close()
}

func (cr *SQLiteCompanyRepo) Upsert(c *company.Company) error {
	directors, err := json.Marshal(c.Directors)
	if err != nil {
		return errors.Wrap(err, "[SQLiteCompanyRepo.Upsert] marshal directors")
	}
	shareholders, err := json.Marshal(c.Shareholders)
	if err != nil {
		return errors.Wrap(err, "[SQLiteCompanyRepo.Upsert] marshal shareholders")
	}
	_, err = cr.db.Exec(`
		INSERT INTO companies (pid, name, registration_number, country, address,
			directors, shareholders, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pid) DO UPDATE SET
			name=excluded.name, registration_number=excluded.registration_number,
			country=excluded.country, address=excluded.address,
			directors=excluded.directors, shareholders=excluded.shareholders,
			updated_at=excluded.updated_at`,
		c.PID, c.Name, c.RegistrationNumber, c.Country, c.Address,
		string(directors), string(shareholders), c.CreatedAt, c.UpdatedAt)
	return errors.Wrap(err, "[SQLiteCompanyRepo.Upsert]")
}

func (cr *SQLiteCompanyRepo) Delete(pid string) error {
	res, err := cr.db.Exec(`DELETE FROM companies WHERE pid = ?`, pid)
	if err != nil {
		return errors.Wrap(err, "[SQLiteCompanyRepo.Delete]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[SQLiteCompanyRepo.Delete] RowsAffected")
	}
	if n == 0 {
		return NotFoundErr
	}
	return nil
}

func (cr *SQLiteCompanyRepo) GetByPID(pid string) (*company.Company, error) {
	row := cr.db.QueryRow(`
		SELECT pid, name, registration_number, country, address,
			directors, shareholders, created_at, updated_at
		FROM companies WHERE pid = ?`, pid)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundErr
	}
	if err != nil {
		return nil, errors.Wrap(err, "[SQLiteCompanyRepo.GetByPID]")
	}
	return c, nil
}

func (cr *SQLiteCompanyRepo) List(offset, limit int) ([]*company.Company, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := cr.db.Query(`
		SELECT pid, name, registration_number, country, address,
			directors, shareholders, created_at, updated_at
		FROM companies ORDER BY pid LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "[SQLiteCompanyRepo.List] query")
	}
	defer rows.Close()

	companies := make([]*company.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[SQLiteCompanyRepo.List] scan")
		}
		companies = append(companies, c)
	}
	return companies, errors.Wrap(rows.Err(), "[SQLiteCompanyRepo.List] rows")
}

func (cr *SQLiteCompanyRepo) AppendChangeLog(entry *company.ChangeLog) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return errors.Wrap(err, "[SQLiteCompanyRepo.AppendChangeLog] marshal changes")
	}
	_, err = cr.db.Exec(`
		INSERT INTO change_logs (id, change_type, object_type, object_pid, changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.ChangeType), entry.ObjectType, entry.ObjectPID,
		string(changes), entry.CreatedAt)
	return errors.Wrap(err, "[SQLiteCompanyRepo.AppendChangeLog]")
}

func (cr *SQLiteCompanyRepo) ChangeLogs(objectPID string) ([]*company.ChangeLog, error) {
	rows, err := cr.db.Query(`
		SELECT id, change_type, object_type, object_pid, changes, created_at
		FROM change_logs WHERE object_pid = ? ORDER BY created_at`, objectPID)
	if err != nil {
		return nil, errors.Wrap(err, "[SQLiteCompanyRepo.ChangeLogs] query")
	}
	defer rows.Close()

	var entries []*company.ChangeLog
	for rows.Next() {
		var (
			entry      company.ChangeLog
			changeType string
			changes    string
		)
		if err := rows.Scan(&entry.ID, &changeType, &entry.ObjectType, &entry.ObjectPID,
			&changes, &entry.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "[SQLiteCompanyRepo.ChangeLogs] scan")
		}
		entry.ChangeType = company.ChangeType(changeType)
		if err := json.Unmarshal([]byte(changes), &entry.Changes); err != nil {
			return nil, errors.Wrap(err, "[SQLiteCompanyRepo.ChangeLogs] unmarshal changes")
		}
		entries = append(entries, &entry)
	}
	return entries, errors.Wrap(rows.Err(), "[SQLiteCompanyRepo.ChangeLogs] rows")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompany(s scanner) (*company.Company, error) {
	var (
		c            company.Company
		directors    string
		shareholders string
		createdAt    sql.NullTime
		updatedAt    sql.NullTime
	)
	err := s.Scan(&c.PID, &c.Name, &c.RegistrationNumber, &c.Country, &c.Address,
		&directors, &shareholders, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(directors), &c.Directors); err != nil {
		return nil, errors.Wrap(err, "unmarshal directors")
	}
	if err := json.Unmarshal([]byte(shareholders), &c.Shareholders); err != nil {
		return nil, errors.Wrap(err, "unmarshal shareholders")
	}
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}
