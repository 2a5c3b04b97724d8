package main

import (
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/medalert/internal/config"
	"github.com/and161185/medalert/internal/prefs"
	"github.com/and161185/medalert/internal/remote"
	"github.com/and161185/medalert/internal/repository"
	"github.com/and161185/medalert/internal/viewstate"
)

// app is the wired client stack for one invocation.
type app struct {
	cfg    config.Client
	log    *zap.Logger
	store  *prefs.Store
	repo   *repository.PatientRepository
	holder *viewstate.Holder
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newApp(cfg config.Client) (*app, error) {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	tr, err := remote.NewTransport(cfg.CACert, cfg.Insecure)
	if err != nil {
		return nil, err
	}
	api, err := remote.New(cfg.APIURL,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Timeout, Transport: tr}),
		remote.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	store, err := prefs.OpenFile(cfg.ConfigDir, cfg.Passphrase, prefs.WithLogger(log))
	if err != nil {
		return nil, err
	}
	repo := repository.New(api, store, log)
	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		repo:   repo,
		holder: viewstate.New(repo, viewstate.WithLogger(log)),
	}, nil
}

// withReminders rebuilds the holder so profile loads re-arm s.
func (a *app) withReminders(s viewstate.ReminderSyncer) {
	a.holder = viewstate.New(a.repo, viewstate.WithLogger(a.log), viewstate.WithReminders(s))
}

func (a *app) close() { _ = a.log.Sync() }
