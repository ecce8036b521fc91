package jobs

// User is the identity of a requester, as given by the authentication layer
type User struct {
	ID        int64
	Superuser bool
}

// Authorizer decides who may see jobs. It is provided by the authentication layer.
type Authorizer interface {
	CanView(user User, job *Job) bool
	IsPrivileged(user User) bool
}

// DefaultAuthorizer lets superusers see everything and users see their own jobs
type DefaultAuthorizer struct{}

func (DefaultAuthorizer) CanView(user User, job *Job) bool {
	return user.Superuser || job.Owner.Is(user.ID)
}

func (DefaultAuthorizer) IsPrivileged(user User) bool {
	return user.Superuser
}
