package main

import (
	"context"
	"fmt"
	"time"

	"roundtable/internal/api"
	"roundtable/internal/config"
	"roundtable/internal/daemonctl"
	"roundtable/internal/maintenance"
	"roundtable/internal/session"
	"roundtable/internal/store"
)

type sessionBackend interface {
	Source() string
	List(ctx context.Context, states []string) ([]api.Session, error)
	Get(ctx context.Context, id string) (*api.Session, error)
	Diagnose(ctx context.Context, id string) (*api.Diagnostics, error)
	Recover(ctx context.Context, id string) (int, error)
	Redownload(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
	SweepStuck(ctx context.Context, threshold time.Duration) (int, error)
}

// --- daemon adapter ---

type daemonBackend struct {
	client *daemonctl.Client
}

func (b *daemonBackend) Source() string { return "daemon" }

func (b *daemonBackend) List(ctx context.Context, states []string) ([]api.Session, error) {
	return b.client.ListSessions(ctx, states...)
}

func (b *daemonBackend) Get(ctx context.Context, id string) (*api.Session, error) {
	return b.client.GetSession(ctx, id)
}

func (b *daemonBackend) Diagnose(ctx context.Context, id string) (*api.Diagnostics, error) {
	return b.client.Diagnose(ctx, id)
}

func (b *daemonBackend) Recover(ctx context.Context, id string) (int, error) {
	return b.client.Recover(ctx, id)
}

func (b *daemonBackend) Redownload(ctx context.Context, id string) (int, error) {
	return b.client.Redownload(ctx, id)
}

func (b *daemonBackend) Delete(ctx context.Context, id string) error {
	return b.client.DeleteSession(ctx, id)
}

func (b *daemonBackend) SweepStuck(ctx context.Context, threshold time.Duration) (int, error) {
	return b.client.SweepStuck(ctx, threshold)
}

// --- direct store adapter ---

type localBackend struct {
	store       *store.Store
	maintenance *maintenance.Service
	cfg         *config.Config
}

func (b *localBackend) Source() string { return "database" }

func (b *localBackend) List(ctx context.Context, states []string) ([]api.Session, error) {
	filter := make([]session.SessionProcessingState, 0, len(states))
	for _, state := range states {
		filter = append(filter, session.SessionProcessingState(state))
	}
	sessions, err := b.store.GetAll(ctx, filter...)
	if err != nil {
		return nil, err
	}
	return api.FromSessions(sessions), nil
}

func (b *localBackend) Get(ctx context.Context, id string) (*api.Session, error) {
	sess, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := api.FromSession(sess)
	return &dto, nil
}

func (b *localBackend) Diagnose(ctx context.Context, id string) (*api.Diagnostics, error) {
	report, err := b.maintenance.Diagnose(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := api.FromDiagnostics(report)
	return &dto, nil
}

func (b *localBackend) Recover(ctx context.Context, id string) (int, error) {
	return b.maintenance.RecoverFailedFiles(ctx, id)
}

func (b *localBackend) Redownload(ctx context.Context, id string) (int, error) {
	return b.maintenance.RedownloadTranscripts(ctx, id)
}

func (b *localBackend) Delete(ctx context.Context, id string) error {
	sess, err := b.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.State.IsActive() && !staleHeartbeat(b.cfg, sess) {
		return fmt.Errorf("delete %s: %w", id, maintenance.ErrSessionActive)
	}
	return b.store.Delete(ctx, id)
}

func (b *localBackend) SweepStuck(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = b.cfg.StuckThreshold()
	}
	return b.maintenance.DetectStuckSessions(ctx, threshold)
}
