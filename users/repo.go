package users

type UserRepo interface {
	Upsert(user *User) error
	Delete(username string) error
	GetByUsername(username string) (*User, error)
	GetByID(ID string) (*User, error)
	List(offset, limit int) ([]*User, error)
	SetBlocked(username string, blocked bool) error
	SetVerified(username string, verified bool) error
	SetLastLogin(username string) error
}
