package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"roundtable/internal/logging"
	"roundtable/internal/services"
	"roundtable/internal/session"
)

// checkFolder verifies the session folder exists and is writable, since
// conversions and transcript documents are written next to the recordings.
func checkFolder(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "validate", "folder", "session folder does not exist: "+path, nil)
		}
		return services.Wrap(services.ErrValidation, "validate", "folder", "stat session folder", err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrValidation, "validate", "folder", path+" is not a directory", nil)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return services.WithHint(
			services.Wrap(services.ErrValidation, "validate", "folder", "insufficient permissions on "+path, err),
			"grant the daemon user read/write access to the session folder",
		)
	}
	return nil
}

// validate prepares s for a run: recordings exist, participants are named,
// durations are known and no file is stranded in a collective state.
func (r *sessionRun) validate(ctx context.Context) error {
	s := r.session
	s.State = session.SessionValidating
	s.ErrorMessage = ""
	r.report("Validating recordings", 0)

	if len(s.Files) == 0 {
		return services.Wrap(services.ErrValidation, "validate", "files", "session has no recordings", nil)
	}
	if err := checkFolder(s.FolderPath); err != nil {
		return err
	}
	if r.o.roster != nil && r.o.roster.Apply(s) {
		r.logger.Info("participants filled from roster", logging.Int("participants", len(s.Participants)))
	}

	// A previous run stopped after the barrier; collective work restarts
	// from the barrier and earlier output is discarded.
	s.Highlights = nil
	s.Stats = nil
	for _, f := range s.Files {
		if f.State.IsCollective() {
			f.BeginStage(session.FileWaitingForSiblings)
		}
	}

	if r.o.durations != nil {
		for _, f := range s.Files {
			if f.DurationSeconds > 0 || !exists(f.Path) {
				continue
			}
			seconds, err := r.o.durations.Duration(ctx, f.Path)
			if err != nil {
				r.logger.Debug("duration lookup failed",
					logging.String(logging.FieldFileName, f.Name),
					logging.Error(err),
				)
				continue
			}
			f.DurationSeconds = seconds
		}
	}
	r.report(fmt.Sprintf("Validated %d recordings", len(s.Files)), phaseValidated)
	return nil
}
