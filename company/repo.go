package company

type Repo interface {
	Upsert(company *Company) error
	Delete(pid string) error
	GetByPID(pid string) (*Company, error)
	List(offset, limit int) ([]*Company, error)

	AppendChangeLog(entry *ChangeLog) error
	ChangeLogs(objectPID string) ([]*ChangeLog, error)
}
