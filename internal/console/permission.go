package console

import "context"

// Permission decides whether a requester may see a screen. Implementations
// may fail; a failure denies access.
type Permission interface {
	Allow(ctx context.Context, req *Request) (bool, error)
}

// PermissionFunc adapts a function to Permission.
type PermissionFunc func(ctx context.Context, req *Request) (bool, error)

// Allow implements Permission.
func (f PermissionFunc) Allow(ctx context.Context, req *Request) (bool, error) {
	return f(ctx, req)
}

// AllowAll grants access to everyone.
var AllowAll Permission = PermissionFunc(func(context.Context, *Request) (bool, error) {
	return true, nil
})

// RequireCapabilities grants access when the requester holds every listed
// capability.
func RequireCapabilities(caps ...string) Permission {
	return PermissionFunc(func(_ context.Context, req *Request) (bool, error) {
		return req.Capabilities.HasAll(caps...), nil
	})
}

// AllOf grants access when every permission does. Nil entries are skipped.
func AllOf(perms ...Permission) Permission {
	return PermissionFunc(func(ctx context.Context, req *Request) (bool, error) {
		for _, p := range perms {
			if p == nil {
				continue
			}
			ok, err := p.Allow(ctx, req)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}
