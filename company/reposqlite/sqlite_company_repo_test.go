package sqlitecompanyrepo_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-vpn-auth-service/company"
	sqlitecompanyrepo "github.com/jrsteele09/go-vpn-auth-service/company/reposqlite"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *sqlitecompanyrepo.SQLiteCompanyRepo {
	t.Helper()
	repo, err := sqlitecompanyrepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUpsertAndGetRoundTripsNestedObjects(t *testing.T) {
	repo := newTestRepo(t)

	c := &company.Company{
		PID:     "1111111111111111",
		Name:    "Acme Ltd",
		Country: "GB",
		Directors: []company.Director{
			{PID: "2222222222222222", FullName: "Jane Smith", TIN: "TIN-1"},
		},
		Shareholders: []company.Shareholder{
			{PID: "3333333333333333", FullName: "Jane Smith", Percentage: 100},
		},
	}
	require.NoError(t, repo.Upsert(c))

	got, err := repo.GetByPID("1111111111111111")
	require.NoError(t, err)
	require.Equal(t, c.Name, got.Name)
	require.Equal(t, c.Directors, got.Directors)
	require.Equal(t, c.Shareholders, got.Shareholders)
}

func TestGetUnknownCompany(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByPID("0000000000000000")
	require.ErrorIs(t, err, sqlitecompanyrepo.NotFoundErr)
}

func TestListPagination(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Upsert(&company.Company{PID: "1", Name: "A"}))
	require.NoError(t, repo.Upsert(&company.Company{PID: "2", Name: "B"}))
	require.NoError(t, repo.Upsert(&company.Company{PID: "3", Name: "C"}))

	page, err := repo.List(1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "B", page[0].Name)
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Upsert(&company.Company{PID: "1", Name: "A"}))
	require.NoError(t, repo.Delete("1"))
	require.ErrorIs(t, repo.Delete("1"), sqlitecompanyrepo.NotFoundErr)
}

func TestChangeLogRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.AppendChangeLog(&company.ChangeLog{
		ID:         "log-1",
		ChangeType: company.ChangeUpdated,
		ObjectType: "company",
		ObjectPID:  "1111111111111111",
		Changes:    map[string]company.FieldDiff{"name": {Old: "A", New: "B"}},
		CreatedAt:  now,
	}))

	logs, err := repo.ChangeLogs("1111111111111111")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, company.ChangeUpdated, logs[0].ChangeType)
	require.Equal(t, map[string]company.FieldDiff{"name": {Old: "A", New: "B"}}, logs[0].Changes)

	logs, err = repo.ChangeLogs("other")
	require.NoError(t, err)
	require.Empty(t, logs)
}
