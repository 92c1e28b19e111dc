package frontend

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/systemd/coredump-go/internal/coredump"
)

// procField names one best-effort journal field read verbatim from a file
// under /proc/<pid>/ (spec.md §4.1 "Context enrichment").
type procField struct {
	journalName string
	procPath    string
}

var procFields = []procField{
	{"COREDUMP_PROC_STATUS", "status"},
	{"COREDUMP_PROC_MAPS", "maps"},
	{"COREDUMP_PROC_LIMITS", "limits"},
	{"COREDUMP_PROC_CGROUP", "cgroup"},
	{"COREDUMP_PROC_MOUNTINFO", "mountinfo"},
	{"COREDUMP_ENVIRON", "environ"},
	{"COREDUMP_CMDLINE", "cmdline"},
}

var procLinks = []procField{
	{"COREDUMP_CWD", "cwd"},
	{"COREDUMP_ROOT", "root"},
}

// Enrich reads the best-effort per-process fields enumerated in spec.md
// §4.1 out of /proc/<pid>. Every field is captured independently;
// failures simply omit that field rather than aborting enrichment.
func Enrich(pid int) []coredump.Field {
	var fields []coredump.Field

	base := fmt.Sprintf("/proc/%d", pid)

	for _, pf := range procFields {
		raw, err := os.ReadFile(filepath.Join(base, pf.procPath))
		if err != nil {
			continue
		}

		fields = append(fields, coredump.Field{Name: pf.journalName, Value: raw})
	}

	for _, pf := range procLinks {
		target, err := os.Readlink(filepath.Join(base, pf.procPath))
		if err != nil {
			continue
		}

		fields = append(fields, coredump.NewField(pf.journalName, target))
	}

	if openFDs := openFDsField(pid); openFDs != "" {
		fields = append(fields, coredump.NewField("COREDUMP_OPEN_FDS", openFDs))
	}

	if unit, ok := loginCgroupFields(pid); ok {
		fields = append(fields, unit...)
	}

	return fields
}

// openFDsField composes the "list of open file descriptors" field (spec.md
// §4.1): joining each /proc/<pid>/fd/<n> target with the matching
// /proc/<pid>/fdinfo/<n> body, one "<n>:<target>\n<fdinfo-lines>\n" block
// per descriptor.
func openFDsField(pid int) string {
	fdDir := fmt.Sprintf("/proc/%d/fd", pid)

	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return ""
	}

	var b strings.Builder

	for _, entry := range entries {
		n := entry.Name()

		target, err := os.Readlink(filepath.Join(fdDir, n))
		if err != nil {
			continue
		}

		info, err := os.ReadFile(fmt.Sprintf("/proc/%d/fdinfo/%s", pid, n))
		if err != nil {
			info = nil
		}

		fmt.Fprintf(&b, "%s:%s\n%s\n", n, target, info)
	}

	return b.String()
}

// loginCgroupFields resolves session, owner-uid, slice and cgroup-path
// from /proc/<pid>/cgroup and the session/login data systemd-logind
// exposes alongside it. This repo has no logind client in its dependency
// set, so SESSION/USER_UNIT are not emitted; SLICE and CGROUP fall back
// to the cgroup-path derived values already available locally, matching
// the best-effort posture of spec.md §4.1 ("values are captured
// best-effort"). OWNER_UID is emitted separately in send.go, derived
// from the crashing uid already in context.
func loginCgroupFields(pid int) ([]coredump.Field, bool) {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return nil, false
	}

	var fields []coredump.Field

	fields = append(fields, coredump.NewField("COREDUMP_CGROUP", strings.TrimRight(string(raw), "\n")))

	line := strings.TrimRight(string(raw), "\n")
	parts := strings.Split(line, "\n")

	for _, l := range parts {
		segs := strings.SplitN(l, ":", 3)
		if len(segs) != 3 {
			continue
		}

		cgPath := segs[2]
		if cgPath == "" {
			continue
		}

		fields = append(fields, coredump.NewField("COREDUMP_SLICE", sliceOf(cgPath)))

		break
	}

	return fields, true
}

// sliceOf returns the slice-looking ancestor of a cgroup path, i.e. the
// last path component ending in ".slice", or the root slice if none is
// found.
func sliceOf(cgPath string) string {
	slice := "-.slice"

	for _, seg := range strings.Split(cgPath, "/") {
		if strings.HasSuffix(seg, ".slice") {
			slice = seg
		}
	}

	return slice
}

// ContainerCmdline implements the containerisation-detection walk
// (spec.md §4.1): if /proc/<pid>/root resolves to the same inode as /,
// the process is not containerised and there is nothing to report. Else
// walk ancestors via /proc/<pid>/status:PPid until one is found whose
// mount-namespace inode differs from pid's, and report that ancestor's
// cmdline. Stops at pid 1 with no result.
func ContainerCmdline(pid int) (string, bool) {
	rootIno, err := inodeOf(fmt.Sprintf("/proc/%d/root", pid))
	if err != nil {
		return "", false
	}

	hostRootIno, err := inodeOf("/")
	if err != nil {
		return "", false
	}

	if rootIno == hostRootIno {
		return "", false
	}

	childMnt, err := inodeOf(fmt.Sprintf("/proc/%d/ns/mnt", pid))
	if err != nil {
		return "", false
	}

	current := pid

	for current != 1 {
		ppid, ok := parentOf(current)
		if !ok || ppid == current {
			return "", false
		}

		mnt, err := inodeOf(fmt.Sprintf("/proc/%d/ns/mnt", ppid))
		if err != nil {
			return "", false
		}

		if mnt != childMnt {
			cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", ppid))
			if err != nil {
				return "", false
			}

			return strings.ReplaceAll(strings.TrimRight(string(cmdline), "\x00"), "\x00", " "), true
		}

		if ppid == 1 {
			return "", false
		}

		current = ppid
	}

	return "", false
}

func inodeOf(path string) (uint64, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return 0, err
	}

	return stat.Ino, nil
}

func parentOf(pid int) (int, bool) {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, false
	}

	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, "PPid:") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return 0, false
		}

		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, false
		}

		return ppid, true
	}

	return 0, false
}
