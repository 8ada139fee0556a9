package company_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-vpn-auth-service/company"
	fakecompanyrepo "github.com/jrsteele09/go-vpn-auth-service/company/repofake"
	"github.com/jrsteele09/go-vpn-auth-service/internal/utils"
	"github.com/stretchr/testify/require"
)

func newCompanyFixture(t *testing.T) (*fakecompanyrepo.FakeCompanyRepo, *company.Service) {
	t.Helper()
	repo := fakecompanyrepo.NewFakeCompanyRepo()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return repo, company.NewService(repo, company.WithNowTime(func() time.Time { return now }))
}

func TestCreateAssignsPIDs(t *testing.T) {
	_, svc := newCompanyFixture(t)

	c := &company.Company{
		Name:      "Acme Ltd",
		Directors: []company.Director{{FullName: "Jane Smith"}},
		Shareholders: []company.Shareholder{
			{FullName: "Jane Smith", Percentage: 100},
		},
	}
	require.NoError(t, svc.Create(c))
	require.Len(t, c.PID, 16)
	require.Len(t, c.Directors[0].PID, 16)
	require.Len(t, c.Shareholders[0].PID, 16)
	require.False(t, c.CreatedAt.IsZero())

	logs, err := svc.ChangeLogs(c.PID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, company.ChangeAdded, logs[0].ChangeType)
	require.Equal(t, "company", logs[0].ObjectType)
}

func TestGetUnknownCompany(t *testing.T) {
	_, svc := newCompanyFixture(t)

	_, err := svc.Get("0000000000000000")
	require.ErrorIs(t, err, company.CompanyNotFoundErr)
}

func TestApplyPatchRecordsFieldDiffs(t *testing.T) {
	_, svc := newCompanyFixture(t)

	c := &company.Company{Name: "Acme Ltd", Country: "GB"}
	require.NoError(t, svc.Create(c))

	patched, err := svc.ApplyPatch(c.PID, company.Patch{
		Name:    utils.Ptr("Acme Holdings Ltd"),
		Country: utils.Ptr("GB"), // unchanged, must not appear in the diff
		Address: utils.Ptr("1 Main Street"),
	})
	require.NoError(t, err)
	require.Equal(t, "Acme Holdings Ltd", patched.Name)
	require.Equal(t, "1 Main Street", patched.Address)

	logs, err := svc.ChangeLogs(c.PID)
	require.NoError(t, err)
	require.Len(t, logs, 2) // create + update

	update := logs[1]
	require.Equal(t, company.ChangeUpdated, update.ChangeType)
	require.Equal(t, map[string]company.FieldDiff{
		"name":    {Old: "Acme Ltd", New: "Acme Holdings Ltd"},
		"address": {Old: "", New: "1 Main Street"},
	}, update.Changes)
}

func TestApplyPatchAddsAndRemovesDirectors(t *testing.T) {
	_, svc := newCompanyFixture(t)

	c := &company.Company{
		Name:      "Acme Ltd",
		Directors: []company.Director{{PID: "1111111111111111", FullName: "Jane Smith"}},
	}
	require.NoError(t, svc.Create(c))

	patched, err := svc.ApplyPatch(c.PID, company.Patch{
		AddDirectors:    []company.Director{{FullName: "John Doe"}},
		RemoveDirectors: []string{"1111111111111111"},
	})
	require.NoError(t, err)
	require.Len(t, patched.Directors, 1)
	require.Equal(t, "John Doe", patched.Directors[0].FullName)

	added, err := svc.ChangeLogs(patched.Directors[0].PID)
	require.NoError(t, err)
	require.Len(t, added, 1)
	require.Equal(t, company.ChangeAdded, added[0].ChangeType)
	require.Equal(t, "director", added[0].ObjectType)

	removed, err := svc.ChangeLogs("1111111111111111")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	require.Equal(t, company.ChangeRemoved, removed[0].ChangeType)
}

func TestApplyPatchRemoveUnknownDirectorLogsNothing(t *testing.T) {
	_, svc := newCompanyFixture(t)

	c := &company.Company{Name: "Acme Ltd"}
	require.NoError(t, svc.Create(c))

	_, err := svc.ApplyPatch(c.PID, company.Patch{RemoveDirectors: []string{"2222222222222222"}})
	require.NoError(t, err)

	logs, err := svc.ChangeLogs("2222222222222222")
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestApplyPatchUnknownCompany(t *testing.T) {
	_, svc := newCompanyFixture(t)

	_, err := svc.ApplyPatch("0000000000000000", company.Patch{Name: utils.Ptr("X")})
	require.ErrorIs(t, err, company.CompanyNotFoundErr)
}
