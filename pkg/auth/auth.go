package auth

import "context"

// Identity is resolved upstream; services only read the forwarded headers.
const (
	XUserNameHeader = "X-User-Name"
	XUserRoleHeader = "X-User-Role"

	RoleUser  = "user"
	RoleStaff = "staff"
)

type ctxKey int

const userKey ctxKey = iota + 1

type User struct {
	Name string
	Role string
}

func (u User) IsStaff() bool {
	return u.Role == RoleStaff
}

func SetAuthContext(ctx context.Context, userName, role string) context.Context {
	if role == "" {
		role = RoleUser
	}
	return context.WithValue(ctx, userKey, User{Name: userName, Role: role})
}

func GetUser(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey).(User)
	return u, ok
}

func IsStaff(ctx context.Context) bool {
	u, ok := GetUser(ctx)
	return ok && u.IsStaff()
}
