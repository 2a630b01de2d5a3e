package auth

import "context"

// Directory is the credential store collaborator: a user-record lookup by
// username. The CRUD side of user management lives outside this core.
type Directory interface {
	Lookup(ctx context.Context, username string) (*UserRecord, error)
}
