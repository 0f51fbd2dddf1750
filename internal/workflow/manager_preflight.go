package workflow

import (
	"context"
	"strings"

	"roundtable/internal/deps"
	"roundtable/internal/logging"
)

// runPreflightChecks logs the availability of the external binaries the
// pipeline shells out to and returns the results for Status. Missing tools
// do not stop the daemon: MP3-only sessions never need them.
func (m *Manager) runPreflightChecks(ctx context.Context) []deps.Status {
	results := deps.CheckBinaries(ctx, deps.ForConfig(m.cfg))
	for _, r := range results {
		if r.Available {
			m.logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("version", r.Version),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		impact := "non-FLAC durations stay unknown until transcription"
		if !r.Optional {
			impact = "recordings that need conversion will fail"
		}
		logging.WarnWithContext(m.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "install "+strings.ToLower(r.Name)+" or set its path in [conversion]"),
			logging.String(logging.FieldImpact, impact),
		)
	}
	return results
}
