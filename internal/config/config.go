// Package config holds the Coredump configuration record (spec.md §3) and
// its ini-file adapter. The parser itself is treated as an external
// collaborator per spec.md §1, but a concrete adapter still lives here so
// the two binaries have something to call.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

// DefaultPath is the well-known configuration file location (spec.md §6).
const DefaultPath = "/etc/systemd/coredump.conf"

// Storage enumerates where a core image is retained.
type Storage int

const (
	StorageNone Storage = iota
	StorageExternal
	StorageJournal
)

func (s Storage) String() string {
	switch s {
	case StorageNone:
		return "none"
	case StorageExternal:
		return "external"
	case StorageJournal:
		return "journal"
	default:
		return "unknown"
	}
}

func parseStorage(s string) (Storage, error) {
	switch s {
	case "", "external":
		return StorageExternal, nil
	case "none":
		return StorageNone, nil
	case "journal":
		return StorageJournal, nil
	default:
		return StorageExternal, fmt.Errorf("invalid Storage value %q", s)
	}
}

const (
	// GiB-scale defaults from spec.md §3 / original_source coredump.c.
	defaultProcessSizeMax  uint64 = 2 * 1024 * 1024 * 1024
	defaultExternalSizeMax uint64 = 2 * 1024 * 1024 * 1024
	defaultJournalSizeMax  uint64 = 767 * 1024 * 1024

	// unsetSize marks KeepFree/MaxUse as not configured.
	unsetSize uint64 = ^uint64(0)
)

// Config is the populated [Coredump] configuration record.
type Config struct {
	Storage         Storage
	Compress        bool
	ProcessSizeMax  uint64
	ExternalSizeMax uint64
	JournalSizeMax  uint64
	KeepFree        uint64 // unsetSize when not configured
	MaxUse          uint64 // unsetSize when not configured
}

// Default returns the configuration record with spec.md §3's defaults.
func Default() Config {
	return Config{
		Storage:         StorageExternal,
		Compress:        true,
		ProcessSizeMax:  defaultProcessSizeMax,
		ExternalSizeMax: defaultExternalSizeMax,
		JournalSizeMax:  defaultJournalSizeMax,
		KeepFree:        unsetSize,
		MaxUse:          unsetSize,
	}
}

// KeepFreeSet reports whether KeepFree was configured.
func (c Config) KeepFreeSet() bool { return c.KeepFree != unsetSize }

// MaxUseSet reports whether MaxUse was configured.
func (c Config) MaxUseSet() bool { return c.MaxUse != unsetSize }

// StorageMax returns the size cap appropriate to the configured storage
// mode: ExternalSizeMax for external storage, JournalSizeMax otherwise
// (spec.md §4.2 step 2).
func (c Config) StorageMax() uint64 {
	if c.Storage == StorageExternal {
		return c.ExternalSizeMax
	}

	return c.JournalSizeMax
}

// Load parses the [Coredump] section of an ini-format configuration file,
// starting from Default() and overriding only the keys present. A missing
// file is not an error: Default() applies unchanged, matching the
// original daemon's "configuration is optional" posture.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load coredump configuration: %w", err)
	}

	section := file.Section("Coredump")

	if key := section.Key("Storage"); key.String() != "" {
		storage, err := parseStorage(key.String())
		if err != nil {
			return cfg, err
		}

		cfg.Storage = storage
	}

	if key := section.Key("Compress"); key.String() != "" {
		v, err := key.Bool()
		if err != nil {
			return cfg, fmt.Errorf("invalid Compress value: %w", err)
		}

		cfg.Compress = v
	}

	for name, dst := range map[string]*uint64{
		"ProcessSizeMax":  &cfg.ProcessSizeMax,
		"ExternalSizeMax": &cfg.ExternalSizeMax,
		"JournalSizeMax":  &cfg.JournalSizeMax,
		"KeepFree":        &cfg.KeepFree,
		"MaxUse":          &cfg.MaxUse,
	} {
		key := section.Key(name)
		if key.String() == "" {
			continue
		}

		v, err := key.Uint64()
		if err != nil {
			return cfg, fmt.Errorf("invalid %s value: %w", name, err)
		}

		*dst = v
	}

	if cfg.JournalSizeMax > journalFieldSizeMax {
		return cfg, fmt.Errorf("JournalSizeMax %d exceeds the journal sink's per-field maximum %d", cfg.JournalSizeMax, journalFieldSizeMax)
	}

	return cfg, nil
}

// journalFieldSizeMax mirrors DATA_SIZE_MAX from the journal sink this
// repo submits to (sd-journal's per-field cap); JournalSizeMax must never
// exceed it (spec.md §3).
const journalFieldSizeMax uint64 = 768 * 1024 * 1024
