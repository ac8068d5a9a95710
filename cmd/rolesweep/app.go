package main

import (
	"fmt"

	"github.com/cuemby/rolesweep/pkg/cascade"
	"github.com/cuemby/rolesweep/pkg/config"
	"github.com/cuemby/rolesweep/pkg/events"
	"github.com/cuemby/rolesweep/pkg/notify"
	"github.com/cuemby/rolesweep/pkg/platform"
	"github.com/cuemby/rolesweep/pkg/reconciler"
	"github.com/cuemby/rolesweep/pkg/storage"
)

// app holds the wired components shared by serve and run
type app struct {
	store      *storage.BoltStore
	client     *platform.Client
	broker     *events.Broker
	reconciler *reconciler.Reconciler
}

func newApp(cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	client, err := platform.NewClient(platform.Config{
		BaseURL:           cfg.Platform.BaseURL,
		Token:             cfg.Platform.Token,
		CommunityID:       cfg.CommunityID,
		RequestsPerSecond: cfg.Platform.RequestsPerSecond,
		Burst:             cfg.Platform.Burst,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create platform client: %w", err)
	}

	broker := events.NewBroker()
	dispatcher := notify.NewDispatcher(client, cfg.Notify.FallbackChannelID)

	rec, err := reconciler.NewReconciler(reconciler.Config{
		Store:          store,
		Ledger:         store,
		Provider:       client,
		Notify:         dispatcher.Handler(),
		Cascade:        cascade.NewDelegationCascade(store, client),
		Events:         broker,
		Concurrency:    cfg.Concurrency,
		CallTimeout:    cfg.CallTimeout,
		CascadeTimeout: cfg.CascadeTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{store: store, client: client, broker: broker, reconciler: rec}, nil
}

func (a *app) Close() error {
	a.broker.Stop()
	return a.store.Close()
}
