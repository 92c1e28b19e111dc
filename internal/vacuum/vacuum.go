// Package vacuum implements directory-level retention enforcement for the
// storage directory (spec.md §1 lists a dedicated "disk vacuum subsystem"
// as an external collaborator; this package is this repo's concrete,
// idempotent implementation of that contract).
package vacuum

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// Policy mirrors the KeepFree/MaxUse knobs of config.Config, decoupled
// from that package so this one stays a leaf.
type Policy struct {
	KeepFree uint64 // 0 means "not configured"
	MaxUse   uint64 // 0 means "not configured"
}

// Exempt identifies a file, by device+inode, that must never be removed
// by this vacuum pass even if it is the directory's oldest entry — used
// to protect the Collector's own just-created working copy (spec.md §4.2
// step 4, §5).
type Exempt struct {
	Dev uint64
	Ino uint64
}

// ExemptFromFD derives an Exempt identity from an open file descriptor.
func ExemptFromFD(fd int) (Exempt, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return Exempt{}, fmt.Errorf("failed to stat exempt fd: %w", err)
	}

	return Exempt{Dev: uint64(stat.Dev), Ino: stat.Ino}, nil
}

type candidate struct {
	path    string
	size    int64
	modTime time.Time
	dev     uint64
	ino     uint64
}

// Run prunes dir's regular files, oldest first, until both KeepFree and
// MaxUse are satisfied (or there is nothing left to remove). It never
// removes the file identified by exempt, if any, even if doing so would
// leave the policy unsatisfied; it tolerates concurrent writers by
// ignoring files that vanish mid-scan.
func Run(dir string, policy Policy, exempt *Exempt) error {
	if policy.KeepFree == 0 && policy.MaxUse == 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read storage directory %s: %w", dir, err)
	}

	candidates := make([]candidate, 0, len(entries))
	var totalUse int64

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			// Vanished between ReadDir and Info: another writer raced us.
			continue
		}

		var stat unix.Stat_t
		if err := unix.Lstat(path, &stat); err != nil {
			// Vanished between ReadDir and Lstat: another writer raced us.
			continue
		}

		candidates = append(candidates, candidate{
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
			dev:     uint64(stat.Dev),
			ino:     stat.Ino,
		})

		totalUse += info.Size()
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	var freeBytes uint64

	if policy.KeepFree > 0 {
		freeBytes, err = freeSpace(dir)
		if err != nil {
			return err
		}
	}

	for _, c := range candidates {
		if exempt != nil && c.dev == exempt.Dev && c.ino == exempt.Ino {
			continue
		}

		needKeepFree := policy.KeepFree > 0 && freeBytes < policy.KeepFree
		needMaxUse := policy.MaxUse > 0 && uint64(totalUse) > policy.MaxUse

		if !needKeepFree && !needMaxUse {
			break
		}

		if err := os.Remove(c.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return fmt.Errorf("failed to vacuum %s: %w", c.path, err)
		}

		freeBytes += uint64(c.size)
		totalUse -= c.size
	}

	return nil
}

func freeSpace(dir string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, fmt.Errorf("failed to statfs %s: %w", dir, err)
	}

	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
