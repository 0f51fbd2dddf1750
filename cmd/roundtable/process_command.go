package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"roundtable/internal/api"
	"roundtable/internal/config"
	"roundtable/internal/logging"
	"roundtable/internal/pipeline"
	"roundtable/internal/roster"
	"roundtable/internal/session"
	"roundtable/internal/store"
	"roundtable/internal/workflow"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var subject string
	var date string
	var participants []string
	var queueOnly bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "process <folder>",
		Short: "Transcribe and analyze a recording folder",
		Long: "Process a folder of recordings in the foreground. With --queue the folder is\n" +
			"handed to the running daemon instead.\n\n" +
			"Participants map microphone numbers to names, for example --participant 1=Alice.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildCreateRequest(args[0], subject, date, participants)
			if err != nil {
				return err
			}
			opts, err := req.IngestOptions()
			if err != nil {
				return err
			}
			if queueOnly {
				return queueFolder(cmd, ctx, req)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return processForeground(cmd, cfg, req.Folder, opts, jsonOutput)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject (movie) title; defaults to the folder name")
	cmd.Flags().StringVar(&date, "date", "", "Recording date (YYYY-MM-DD); defaults to the folder name or today")
	cmd.Flags().StringArrayVarP(&participants, "participant", "p", nil, "Microphone participant as N=Name (repeatable)")
	cmd.Flags().BoolVar(&queueOnly, "queue", false, "Queue the folder with the daemon instead of processing here")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the finished session as JSON")
	return cmd
}

func buildCreateRequest(folder, subject, date string, participants []string) (api.CreateSessionRequest, error) {
	abs, err := config.ExpandPath(strings.TrimSpace(folder))
	if err != nil {
		return api.CreateSessionRequest{}, fmt.Errorf("resolve folder: %w", err)
	}
	abs, err = filepath.Abs(abs)
	if err != nil {
		return api.CreateSessionRequest{}, fmt.Errorf("resolve folder: %w", err)
	}
	req := api.CreateSessionRequest{Folder: abs, SubjectTitle: subject, RecordingDate: date}
	for _, entry := range participants {
		index, name, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return req, fmt.Errorf("participant %q must look like N=Name", entry)
		}
		if req.Participants == nil {
			req.Participants = make(map[string]string)
		}
		req.Participants[strings.TrimSpace(index)] = name
	}
	return req, nil
}

func queueFolder(cmd *cobra.Command, ctx *commandContext, req api.CreateSessionRequest) error {
	client, err := ctx.requireDaemon(cmd.Context())
	if err != nil {
		return err
	}
	sess, err := client.CreateSession(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued session %s (%d files)\n", sess.ID, len(sess.Files))
	return nil
}

func processForeground(cmd *cobra.Command, cfg *config.Config, folder string, opts session.IngestOptions, jsonOutput bool) error {
	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	participants := roster.New(cfg.Paths.RosterPath, logging.NewComponentLogger(logger, "roster"))
	if err := participants.Init(); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	orchestrator, err := pipeline.NewFromConfig(cfg, st, participants, logger)
	if err != nil {
		return err
	}

	monitor := workflow.NewHeartbeatMonitor(st, logger, cfg.HeartbeatInterval())
	sess, resumed, err := claimSession(runCtx, st, monitor, folder, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if resumed {
		fmt.Fprintf(out, "Resuming session %s\n", sess.ID)
	} else {
		fmt.Fprintf(out, "Created session %s with %d recording(s)\n", sess.ID, len(sess.Files))
	}

	hbCtx, stopHeartbeat := context.WithCancel(runCtx)
	var wg sync.WaitGroup
	wg.Add(1)
	go monitor.StartLoop(hbCtx, &wg, sess.ID)

	result, runErr := orchestrator.RunEnhanced(runCtx, sess, progressPrinter(out))
	stopHeartbeat()
	wg.Wait()

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("session %s cancelled", sess.ID)
		}
		return fmt.Errorf("session %s failed: %w", sess.ID, runErr)
	}
	dto := api.FromSession(result)
	if jsonOutput {
		return writeJSON(cmd, dto)
	}
	fmt.Fprintln(out)
	renderSessionDetail(out, dto)
	return nil
}

// claimSession returns the folder's unfinished session, or a newly inserted
// one. The claimed session is moved out of the daemon's pick states and
// stamped so a running daemon leaves it alone.
func claimSession(ctx context.Context, st *store.Store, monitor *workflow.HeartbeatMonitor, folder string, opts session.IngestOptions) (*session.Session, bool, error) {
	existing, err := st.FindByFolder(ctx, folder)
	switch {
	case err == nil && !existing.State.IsTerminal():
		if existing.State.IsActive() && !monitor.Stale(existing, time.Now()) {
			return nil, false, fmt.Errorf("session %s for %s is already being processed", existing.ID, folder)
		}
		existing.State = session.SessionValidating
		if err := st.Upsert(ctx, existing); err != nil {
			return nil, false, err
		}
		if err := st.UpdateHeartbeat(ctx, existing.ID); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, false, err
	}

	sess, err := session.FromFolder(folder, opts)
	if err != nil {
		return nil, false, err
	}
	sess.State = session.SessionValidating
	if err := st.Insert(ctx, sess); err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

func progressPrinter(out io.Writer) pipeline.ProgressFunc {
	var mu sync.Mutex
	last := ""
	return func(message string, percent int) {
		line := fmt.Sprintf("[%3d%%] %s", percent, message)
		mu.Lock()
		defer mu.Unlock()
		if line == last {
			return
		}
		last = line
		fmt.Fprintln(out, line)
	}
}
