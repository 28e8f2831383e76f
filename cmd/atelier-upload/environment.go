package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/commons-systems/atelier/internal/auth"
	"github.com/commons-systems/atelier/internal/config"
	"github.com/commons-systems/atelier/internal/drive"
	"github.com/commons-systems/atelier/internal/localstore"
)

var debugEnabled = os.Getenv("ATELIER_DEBUG") != ""

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[ATELIER_DEBUG] "+format, args...)
	}
}

// environment lazily builds the pieces a command needs and closes them afterwards.
type environment struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	cfg     *config.Config
	store   *localstore.Store
	session *auth.Session
	client  *drive.Client
}

func (e *environment) config() (config.Config, error) {
	if e.cfg != nil {
		return *e.cfg, nil
	}
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return config.Config{}, err
	}
	e.cfg = &cfg
	return cfg, nil
}

// validConfig loads the configuration and refuses to continue while required values are
// missing, printing which ones.
func (e *environment) validConfig() (config.Config, error) {
	cfg, err := e.config()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		printDiagnostics(e.stderr, cfg)
		return cfg, err
	}
	return cfg, nil
}

func (e *environment) localStore(ctx context.Context) (*localstore.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	store, err := localstore.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	debugLog("opened local store %s", cfg.DBPath)
	e.store = store
	return store, nil
}

// authSession returns the session with any saved token restored.
func (e *environment) authSession(ctx context.Context) (*auth.Session, error) {
	if e.session != nil {
		return e.session, nil
	}
	cfg, err := e.validConfig()
	if err != nil {
		return nil, err
	}
	store, err := e.localStore(ctx)
	if err != nil {
		return nil, err
	}
	authorizer := auth.NewLoopbackAuthorizer(cfg.ClientID, cfg.ClientSecret, cfg.Scope)
	session := auth.NewSession(authorizer, auth.WithTokenStore(store.TokenStore()))
	if err := session.Restore(ctx); err != nil {
		log.Printf("WARNING: ignoring saved token: %v", err)
	}
	e.session = session
	return session, nil
}

func (e *environment) driveClient(ctx context.Context) (*drive.Client, error) {
	if e.client != nil {
		return e.client, nil
	}
	session, err := e.authSession(ctx)
	if err != nil {
		return nil, err
	}
	cfg := *e.cfg

	opts := []drive.Option{
		drive.WithEnvironment(cfg.Environment),
		drive.WithSharedDrives(cfg.SharedDrive()),
	}
	if cfg.DriveEndpoint != "" {
		opts = append(opts, drive.WithEndpoint(cfg.DriveEndpoint))
	}
	client, err := drive.NewClient(ctx, session, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client: %w", err)
	}
	e.client = client
	return client, nil
}

// signedInClient returns a Drive client, running the interactive login first when no valid
// token is saved.
func (e *environment) signedInClient(ctx context.Context) (*drive.Client, error) {
	client, err := e.driveClient(ctx)
	if err != nil {
		return nil, err
	}
	if !e.session.IsAuthenticated() {
		if err := e.session.LoginAndWait(ctx); err != nil {
			return nil, fmt.Errorf("failed to sign in: %w", err)
		}
	}
	return client, nil
}

func (e *environment) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			log.Printf("WARNING: failed to close local store: %v", err)
		}
	}
}
