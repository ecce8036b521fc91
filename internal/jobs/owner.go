package jobs

import (
	"database/sql"
	"strconv"
)

// Owner tells who a job belongs to: a user, or nobody (a system job).
// The zero value is the system owner.
type Owner struct {
	userID int64
	user   bool
}

// SystemOwner is the owner of maintenance jobs created at deployment time
func SystemOwner() Owner {
	return Owner{}
}

// UserOwner is the owner of a job created by a user
func UserOwner(userID int64) Owner {
	return Owner{userID: userID, user: true}
}

// OwnerFromNull maps a nullable user_id column onto an Owner
func OwnerFromNull(userID sql.NullInt64) Owner {
	if !userID.Valid {
		return SystemOwner()
	}
	return UserOwner(userID.Int64)
}

// IsSystem reports whether the job has no individual owner
func (o Owner) IsSystem() bool {
	return !o.user
}

// UserID returns the owning user's id; ok is false for system jobs
func (o Owner) UserID() (id int64, ok bool) {
	return o.userID, o.user
}

// Is reports whether the owner is the given user
func (o Owner) Is(userID int64) bool {
	return o.user && o.userID == userID
}

// Null is the nullable column form of the owner
func (o Owner) Null() sql.NullInt64 {
	return sql.NullInt64{Int64: o.userID, Valid: o.user}
}

func (o Owner) String() string {
	if !o.user {
		return "system"
	}
	return "user:" + strconv.FormatInt(o.userID, 10)
}
