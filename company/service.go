package company

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var CompanyNotFoundErr = errors.New("company not found")

// Patch is a partial update of a company. Nil fields are left untouched.
// Nested directors and shareholders are added or removed wholesale; nested
// field updates go through their own patches keyed by PID.
type Patch struct {
	Name               *string `json:"name,omitempty"`
	RegistrationNumber *string `json:"registration_number,omitempty"`
	Country            *string `json:"country,omitempty"`
	Address            *string `json:"address,omitempty"`

	AddDirectors       []Director    `json:"add_directors,omitempty"`
	RemoveDirectors    []string      `json:"remove_directors,omitempty"` // PIDs
	AddShareholders    []Shareholder `json:"add_shareholders,omitempty"`
	RemoveShareholders []string      `json:"remove_shareholders,omitempty"` // PIDs
}

// Service applies company mutations and records every change in the
// changelog.
type Service struct {
	repo    Repo
	nowTime func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(repo Repo, options ...ServiceOption) *Service {
	s := &Service{repo: repo, nowTime: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Create stores a new company, assigning PIDs where missing.
func (s *Service) Create(c *Company) error {
	if c.PID == "" {
		c.PID = NewPID()
	}
	for i := range c.Directors {
		if c.Directors[i].PID == "" {
			c.Directors[i].PID = NewPID()
		}
	}
	for i := range c.Shareholders {
		if c.Shareholders[i].PID == "" {
			c.Shareholders[i].PID = NewPID()
		}
	}
	c.CreatedAt = s.nowTime()
	c.UpdatedAt = c.CreatedAt
	if err := s.repo.Upsert(c); err != nil {
		return errors.Wrap(err, "[Service.Create] repo.Upsert")
	}
	return s.logChange(ChangeAdded, "company", c.PID, nil)
}

func (s *Service) Get(pid string) (*Company, error) {
	c, err := s.repo.GetByPID(pid)
	if err != nil {
		return nil, CompanyNotFoundErr
	}
	return c, nil
}

func (s *Service) List(offset, limit int) ([]*Company, error) {
	return s.repo.List(offset, limit)
}

func (s *Service) ChangeLogs(objectPID string) ([]*ChangeLog, error) {
	return s.repo.ChangeLogs(objectPID)
}

// ApplyPatch applies a partial update to the company identified by pid,
// writing one changelog entry per changed object.
func (s *Service) ApplyPatch(pid string, patch Patch) (*Company, error) {
	c, err := s.repo.GetByPID(pid)
	if err != nil {
		return nil, CompanyNotFoundErr
	}

	diffs := make(map[string]FieldDiff)
	applyField(diffs, "name", &c.Name, patch.Name)
	applyField(diffs, "registration_number", &c.RegistrationNumber, patch.RegistrationNumber)
	applyField(diffs, "country", &c.Country, patch.Country)
	applyField(diffs, "address", &c.Address, patch.Address)
	if len(diffs) > 0 {
		if err := s.logChange(ChangeUpdated, "company", c.PID, diffs); err != nil {
			return nil, err
		}
	}

	for _, d := range patch.AddDirectors {
		if d.PID == "" {
			d.PID = NewPID()
		}
		c.Directors = append(c.Directors, d)
		if err := s.logChange(ChangeAdded, "director", d.PID, nil); err != nil {
			return nil, err
		}
	}
	for _, removePID := range patch.RemoveDirectors {
		if removeDirector(&c.Directors, removePID) {
			if err := s.logChange(ChangeRemoved, "director", removePID, nil); err != nil {
				return nil, err
			}
		}
	}

	for _, sh := range patch.AddShareholders {
		if sh.PID == "" {
			sh.PID = NewPID()
		}
		c.Shareholders = append(c.Shareholders, sh)
		if err := s.logChange(ChangeAdded, "shareholder", sh.PID, nil); err != nil {
			return nil, err
		}
	}
	for _, removePID := range patch.RemoveShareholders {
		if removeShareholder(&c.Shareholders, removePID) {
			if err := s.logChange(ChangeRemoved, "shareholder", removePID, nil); err != nil {
				return nil, err
			}
		}
	}

	c.UpdatedAt = s.nowTime()
	if err := s.repo.Upsert(c); err != nil {
		return nil, errors.Wrap(err, "[Service.ApplyPatch] repo.Upsert")
	}
	return c, nil
}

func (s *Service) logChange(changeType ChangeType, objectType, objectPID string, changes map[string]FieldDiff) error {
	entry := &ChangeLog{
		ID:         uuid.New().String(),
		ChangeType: changeType,
		ObjectType: objectType,
		ObjectPID:  objectPID,
		Changes:    changes,
		CreatedAt:  s.nowTime(),
	}
	return errors.Wrap(s.repo.AppendChangeLog(entry), "[Service.logChange] repo.AppendChangeLog")
}

func applyField(diffs map[string]FieldDiff, name string, field *string, value *string) {
	if value == nil || *value == *field {
		return
	}
	diffs[name] = FieldDiff{Old: *field, New: *value}
	*field = *value
}

func removeDirector(directors *[]Director, pid string) bool {
	for i, d := range *directors {
		if d.PID == pid {
			*directors = append((*directors)[:i], (*directors)[i+1:]...)
			return true
		}
	}
	return false
}

func removeShareholder(shareholders *[]Shareholder, pid string) bool {
	for i, sh := range *shareholders {
		if sh.PID == pid {
			*shareholders = append((*shareholders)[:i], (*shareholders)[i+1:]...)
			return true
		}
	}
	return false
}

// String renders a shareholder for diff entries.
func (sh Shareholder) String() string {
	return fmt.Sprintf("%s (%.2f%%)", sh.FullName, sh.Percentage)
}
