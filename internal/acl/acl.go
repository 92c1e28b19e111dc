// Package acl applies the POSIX ACL read grant a stored core file needs
// for its crashing process's non-system owner (spec.md §3). There is no
// cgo-free libacl binding anywhere in the retrieval pack, so this package
// speaks the kernel's "system.posix_acl_access" extended-attribute wire
// format directly through github.com/pkg/xattr, the same dependency
// internal/xattrs uses — grounded the same way canonical-lxd treats
// github.com/pkg/xattr as its one low-level filesystem-metadata library.
package acl

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pkg/xattr"
)

// SystemUIDMax is the compile-time threshold at or below which a uid is
// treated as a "system identity" (spec.md, GLOSSARY) rather than a human
// user.
const SystemUIDMax = 999

// IsSystemIdentity reports whether uid belongs to an OS component rather
// than a human user.
func IsSystemIdentity(uid int) bool {
	return uid <= SystemUIDMax
}

const aclXattrName = "system.posix_acl_access"

// POSIX ACL xattr wire format version 2: a 4-byte little-endian version
// header followed by 8-byte entries {tag uint16, perm uint16, id uint32}.
const (
	aclVersion2 = 2

	tagUserObj  = 0x01
	tagUser     = 0x02
	tagGroupObj = 0x04
	tagGroup    = 0x08
	tagMask     = 0x10
	tagOther    = 0x20

	permRead = 0x04
)

const undefinedID = 0xffffffff

// SetUserRead grants uid a "user:<uid>:r--" ACL entry on the file at path,
// in addition to the default owner/group/other bits encoded by mode,
// skipping entirely when uid is a system identity (spec.md §3).
func SetUserRead(path string, uid int, mode os.FileMode) error {
	if IsSystemIdentity(uid) {
		return nil
	}

	ownerPerm := uint16((mode >> 6) & 0x7)
	groupPerm := uint16((mode >> 3) & 0x7)
	otherPerm := uint16(mode & 0x7)

	mask := groupPerm | permRead

	entries := []aclEntry{
		{tag: tagUserObj, perm: ownerPerm, id: undefinedID},
		{tag: tagUser, perm: permRead, id: uint32(uid)},
		{tag: tagGroupObj, perm: groupPerm, id: undefinedID},
		{tag: tagMask, perm: mask, id: undefinedID},
		{tag: tagOther, perm: otherPerm, id: undefinedID},
	}

	buf := encodeACL(entries)

	if err := xattr.Set(path, aclXattrName, buf); err != nil {
		return fmt.Errorf("failed to set ACL on %s: %w", path, err)
	}

	return nil
}

type aclEntry struct {
	tag  uint16
	perm uint16
	id   uint32
}

func encodeACL(entries []aclEntry) []byte {
	buf := make([]byte, 4+8*len(entries))
	binary.LittleEndian.PutUint32(buf[0:4], aclVersion2)

	for i, e := range entries {
		off := 4 + 8*i
		binary.LittleEndian.PutUint16(buf[off:off+2], e.tag)
		binary.LittleEndian.PutUint16(buf[off+2:off+4], e.perm)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], e.id)
	}

	return buf
}

// Entries decodes the system.posix_acl_access xattr at path, for tests
// and for readers that want to verify the applied grant.
func Entries(path string) ([]aclEntry, error) {
	raw, err := xattr.Get(path, aclXattrName)
	if err != nil {
		return nil, fmt.Errorf("failed to read ACL from %s: %w", path, err)
	}

	if len(raw) < 4 {
		return nil, fmt.Errorf("truncated ACL xattr on %s", path)
	}

	if binary.LittleEndian.Uint32(raw[0:4]) != aclVersion2 {
		return nil, fmt.Errorf("unsupported ACL version on %s", path)
	}

	body := raw[4:]
	if len(body)%8 != 0 {
		return nil, fmt.Errorf("malformed ACL xattr on %s", path)
	}

	entries := make([]aclEntry, 0, len(body)/8)

	for off := 0; off < len(body); off += 8 {
		entries = append(entries, aclEntry{
			tag:  binary.LittleEndian.Uint16(body[off : off+2]),
			perm: binary.LittleEndian.Uint16(body[off+2 : off+4]),
			id:   binary.LittleEndian.Uint32(body[off+4 : off+8]),
		})
	}

	return entries, nil
}

// HasUserRead reports whether entries grants uid a read-only ACL_USER
// entry, for tests asserting the "user:<uid>:r--" invariant.
func HasUserRead(entries []aclEntry, uid int) bool {
	for _, e := range entries {
		if e.tag == tagUser && e.id == uint32(uid) {
			return e.perm&permRead != 0
		}
	}

	return false
}
