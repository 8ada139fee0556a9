package fakecoderepo

import (
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-vpn-auth-service/twofactor"
)

var _ twofactor.CodeRepo = (*FakeCodeRepo)(nil)

type FakeCodeRepo struct {
	codes map[string]*twofactor.Code
	lock  sync.RWMutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{codes: make(map[string]*twofactor.Code)}
}

func (cr *FakeCodeRepo) Create(code *twofactor.Code) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	cr.codes[code.ID] = code
	return nil
}

func (cr *FakeCodeRepo) LatestUnused(userID string) (*twofactor.Code, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	var latest *twofactor.Code
	for _, c := range cr.codes {
		if c.UserID != userID || c.Used {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, errors.New("not found")
	}
	return latest, nil
}

func (cr *FakeCodeRepo) MarkUsed(codeID string) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	code, ok := cr.codes[codeID]
	if !ok {
		return errors.New("not found")
	}
	code.Used = true
	return nil
}

func (cr *FakeCodeRepo) DeleteExpired(before time.Time) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	for id, c := range cr.codes {
		if c.ExpiresAt.Before(before) {
			delete(cr.codes, id)
		}
	}
	return nil
}
