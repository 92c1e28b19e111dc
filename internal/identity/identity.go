// Package identity implements the Collector's one-way privilege drop
// (spec.md §4.2 step 5, §9: "a single irreversible step").
package identity

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// ServiceUser is the dedicated unprivileged identity system crashes drop
// into (spec.md §4.2 step 5).
const ServiceUser = "systemd-coredump"

// Target is the uid/gid pair a privilege drop settles on.
type Target struct {
	UID int
	GID int
}

// Resolve picks the drop target for a crash from crashUID/crashGID: the
// crashing identity verbatim for ordinary users, or the dedicated service
// identity for system identities. isSystemIdentity is injected so this
// package does not need to import the acl package's threshold.
func Resolve(crashUID, crashGID int, isSystemIdentity func(int) bool, lookup func(string) (*user.User, error)) (Target, error) {
	if !isSystemIdentity(crashUID) {
		return Target{UID: crashUID, GID: crashGID}, nil
	}

	u, err := lookup(ServiceUser)
	if err != nil {
		return Target{UID: 0, GID: 0}, fmt.Errorf("failed to resolve service identity %s, falling back to root: %w", ServiceUser, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Target{UID: 0, GID: 0}, fmt.Errorf("service identity %s has non-numeric uid: %w", ServiceUser, err)
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Target{UID: 0, GID: 0}, fmt.Errorf("service identity %s has non-numeric gid: %w", ServiceUser, err)
	}

	return Target{UID: uid, GID: gid}, nil
}

// LookupServiceUser is the production lookup function, passed to Resolve.
func LookupServiceUser(name string) (*user.User, error) {
	return user.Lookup(name)
}

// Drop performs the irreversible transition to target, setting the real,
// effective and saved gid before the uid so the process never holds a uid
// with more privilege than its gid would allow.
func Drop(target Target) error {
	if err := unix.Setresgid(target.GID, target.GID, target.GID); err != nil {
		return fmt.Errorf("failed to drop to gid %d: %w", target.GID, err)
	}

	if err := unix.Setresuid(target.UID, target.UID, target.UID); err != nil {
		return fmt.Errorf("failed to drop to uid %d: %w", target.UID, err)
	}

	return nil
}
