// Package roster maps microphone indexes to participant names.
//
// The roster file is TOML:
//
//	[mics]
//	1 = "alice"
//	2 = "bob"
//
//	[folders."2025-03-01_Heat"]
//	2 = "carol"
//
// Folder tables override individual microphones for recordings whose folder
// base name matches. A Roster is built once at startup and handed to the
// components that need it.
package roster

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"roundtable/internal/logging"
	"roundtable/internal/session"
)

type fileFormat struct {
	Mics    map[string]string            `toml:"mics"`
	Folders map[string]map[string]string `toml:"folders"`
}

// Roster caches the parsed roster file.
type Roster struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	loaded   bool
	defaults map[int]string
	folders  map[string]map[int]string
}

// New returns an uninitialized roster backed by path. An empty path yields a
// roster that never names anyone.
func New(path string, logger *slog.Logger) *Roster {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Roster{
		path:   strings.TrimSpace(path),
		logger: logger,
	}
}

// Init loads the roster file the first time it is called. Later calls are
// no-ops. A missing file is not an error.
func (r *Roster) Init() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	return r.loadLocked()
}

// Reload rereads the roster file.
func (r *Roster) Reload() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Roster) loadLocked() error {
	r.defaults = map[int]string{}
	r.folders = map[string]map[int]string{}
	r.loaded = true
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("roster file absent", logging.String("path", r.path))
			return nil
		}
		return fmt.Errorf("read roster: %w", err)
	}
	var parsed fileFormat
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse roster %s: %w", r.path, err)
	}
	if r.defaults, err = convert(parsed.Mics); err != nil {
		return fmt.Errorf("roster mics: %w", err)
	}
	for folder, mics := range parsed.Folders {
		converted, err := convert(mics)
		if err != nil {
			return fmt.Errorf("roster folder %q: %w", folder, err)
		}
		r.folders[strings.ToLower(strings.TrimSpace(folder))] = converted
	}
	r.logger.Info("roster loaded",
		logging.String("path", r.path),
		logging.Int("participants", len(r.defaults)),
		logging.Int("folder_overrides", len(r.folders)),
	)
	return nil
}

// Participants returns the microphone map for a recording folder. The result
// is a copy.
func (r *Roster) Participants(folder string) map[int]string {
	out := map[int]string{}
	if r == nil {
		return out
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	maps.Copy(out, r.defaults)
	key := strings.ToLower(filepath.Base(strings.TrimSpace(folder)))
	maps.Copy(out, r.folders[key])
	return out
}

// Apply fills the session's microphone map when ingest left it empty. A
// session with mic-indexed files takes only the names for those indexes.
// It reports whether anything changed.
func (r *Roster) Apply(s *session.Session) bool {
	if s == nil || len(s.Participants) > 0 {
		return false
	}
	names := r.Participants(s.FolderPath)
	present := map[int]bool{}
	for _, f := range s.Files {
		if f.SpeakerIndex != nil {
			present[*f.SpeakerIndex] = true
		}
	}
	if len(present) > 0 {
		maps.DeleteFunc(names, func(idx int, _ string) bool { return !present[idx] })
	}
	if len(names) == 0 {
		return false
	}
	s.Participants = names
	return true
}

func convert(raw map[string]string) (map[int]string, error) {
	out := make(map[int]string, len(raw))
	for key, name := range raw {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("microphone index %q is not a non-negative integer", key)
		}
		if name = NormalizeName(name); name != "" {
			out[idx] = name
		}
	}
	return out, nil
}

// NormalizeName trims and title-cases a participant name.
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.Und).String(name)
}
