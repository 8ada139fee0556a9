package fakecompanyrepo

import (
	"errors"
	"sort"
	"sync"

	"github.com/jrsteele09/go-vpn-auth-service/company"
)

var _ company.Repo = (*FakeCompanyRepo)(nil)

type FakeCompanyRepo struct {
	companies  map[string]*company.Company
	changeLogs []*company.ChangeLog
	lock       sync.RWMutex
}

func NewFakeCompanyRepo() *FakeCompanyRepo {
	return &FakeCompanyRepo{companies: make(map[string]*company.Company)}
}

func (cr *FakeCompanyRepo) Upsert(c *company.Company) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	cr.companies[c.PID] = c
	return nil
}

func (cr *FakeCompanyRepo) Delete(pid string) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	if _, ok := cr.companies[pid]; !ok {
		return errors.New("not found")
	}
	delete(cr.companies, pid)
	return nil
}

func (cr *FakeCompanyRepo) GetByPID(pid string) (*company.Company, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()
	c, ok := cr.companies[pid]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (cr *FakeCompanyRepo) List(offset, limit int) ([]*company.Company, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	list := make([]*company.Company, 0, len(cr.companies))
	for _, c := range cr.companies {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PID < list[j].PID })

	if offset > len(list) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(list) {
		end = len(list)
	}
	return list[offset:end], nil
}

func (cr *FakeCompanyRepo) AppendChangeLog(entry *company.ChangeLog) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	cr.changeLogs = append(cr.changeLogs, entry)
	return nil
}

func (cr *FakeCompanyRepo) ChangeLogs(objectPID string) ([]*company.ChangeLog, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	var entries []*company.ChangeLog
	for _, e := range cr.changeLogs {
		if e.ObjectPID == objectPID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
