// Package app builds the gateway's components from the configuration and
// wires them together for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-gateway/internal/access"
	"github.com/tonimelisma/onedrive-gateway/internal/cache"
	"github.com/tonimelisma/onedrive-gateway/internal/config"
	"github.com/tonimelisma/onedrive-gateway/internal/delta"
	"github.com/tonimelisma/onedrive-gateway/internal/gate"
	"github.com/tonimelisma/onedrive-gateway/internal/heartbeat"
	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/registration"
	"github.com/tonimelisma/onedrive-gateway/internal/server"
	"github.com/tonimelisma/onedrive-gateway/internal/session"
	"github.com/tonimelisma/onedrive-gateway/internal/sidecar"
	"github.com/tonimelisma/onedrive-gateway/internal/tree"
	"github.com/tonimelisma/onedrive-gateway/internal/webhook"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// ErrWebhookDisabled means the webhook settings are incomplete.
var ErrWebhookDisabled = errors.New("webhook subsystem is not configured")

// App holds the configuration and the Graph client shared by the components.
type App struct {
	Config *config.Config
	Logger logger.Logger
	SDK    SDK

	resolver *tree.Resolver
}

// NewApp loads the configuration named by the --config flag, applies --debug
// and creates the Graph client.
func NewApp(cmd *cobra.Command) (*App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Debug, logger.ParseFormat(cfg.LogFormat))
	var opts []onedrive.Option
	if cfg.Graph.BaseURL != "" {
		opts = append(opts, onedrive.WithBaseURL(cfg.Graph.BaseURL))
	}
	client := onedrive.NewClient(context.Background(), onedrive.Credentials{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
	}, log, opts...)

	return New(cfg, client, log), nil
}

// New creates an App over an existing SDK.
func New(cfg *config.Config, sdk SDK, log logger.Logger) *App {
	return &App{Config: cfg, Logger: log, SDK: sdk}
}

// DriveID is the drive the gateway manages.
func (a *App) DriveID() string {
	return a.Config.Drives().PrimaryDrive()
}

// Resolver returns the shared ancestry resolver.
func (a *App) Resolver() *tree.Resolver {
	if a.resolver == nil {
		a.resolver = tree.NewResolver(tree.NewGraphTree(a.SDK, a.DriveID()),
			tree.WithCacheTTL(a.Config.TreeCacheTTL),
			tree.WithLogger(a.Logger))
	}
	return a.resolver
}

// Store returns the registration store kept in driveID.
func (a *App) Store(driveID string) *registration.Store {
	return registration.NewStore(a.SDK, driveID, a.Config.RegistrationFileID, a.Logger)
}

// Locker returns the checkout lock over the registration file.
func (a *App) Locker() *registration.Locker {
	return registration.NewLocker(a.SDK, a.DriveID(), a.Config.RegistrationFileID, a.Logger)
}

// Registrar returns the subscription registrar of the managed drive.
func (a *App) Registrar() (*registration.Registrar, error) {
	if err := a.Config.ValidateWebhook(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWebhookDisabled, err)
	}
	return registration.NewRegistrar(a.SDK, a.Store(a.DriveID()), a.Config.NotificationURL(), a.Logger,
		registration.WithLifetime(a.Config.SubscriptionLifetime)), nil
}

// Synchronizer returns a delta synchronizer whose checkpoints live in the
// drive named by each resource. Only approved drives are synced.
func (a *App) Synchronizer(opts ...delta.Option) *delta.Synchronizer {
	opts = append([]delta.Option{delta.WithDriveFilter(a.Config.Drives().AllowsDrive)}, opts...)
	return delta.NewSynchronizer(a.SDK, func(driveID string) delta.Checkpoints {
		return a.Store(driveID)
	}, a.Logger, opts...)
}

// SidecarHandler returns the folder-created handler.
func (a *App) SidecarHandler() (*sidecar.Handler, error) {
	manifest, err := sidecar.ParseManifest(a.Config.SidecarManifest)
	if err != nil {
		return nil, err
	}
	return sidecar.NewHandler(a.SDK, a.Resolver(), sidecar.Folders{
		DriveID:    a.DriveID(),
		CustomerID: a.Config.CustomerFolderID,
		SharedID:   a.Config.SharedResourceFolderID,
	}, manifest, a.Logger), nil
}

// Heartbeat returns the subscription renewal job.
func (a *App) Heartbeat() (*heartbeat.Job, error) {
	registrar, err := a.Registrar()
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(a.Config.LockDir)
	if err != nil {
		return nil, err
	}
	return heartbeat.New(a.Locker(), registrar, a.Config.WebhookResource(), a.Logger,
		heartbeat.WithTimeout(a.Config.HeartbeatTimeout),
		heartbeat.WithSessions(sessions)), nil
}

// Claims returns the bearer token verifier.
func (a *App) Claims() *access.ClaimsResolver {
	opts := []access.ClaimsOption{
		access.WithSharedSecret(a.Config.AccessTokenSecret),
		access.WithAudience(a.Config.AccessTokenAudience),
		access.WithClaimsLogger(a.Logger),
	}
	if a.Config.OpenIDConfigurationURL != "" {
		opts = append(opts, access.WithKeySet(access.NewJWKS(a.Config.OpenIDConfigurationURL, &http.Client{Timeout: 10 * time.Second})))
	}
	return access.NewClaimsResolver(opts...)
}

// Enricher returns the sign-in enrichment handler.
func (a *App) Enricher() *access.Enricher {
	var customers *access.AccessCache
	if a.Config.CustomerFolderID != "" {
		customers = access.NewAccessCache(a.SDK, a.DriveID(), a.Config.CustomerFolderID, a.Logger,
			cache.WithTTL(a.Config.AccessCacheTTL))
	}
	return access.NewEnricher(a.SDK, customers, access.Rules{
		AnonymousReadFolders:  a.Config.AnonymousReadFolders,
		AnonymousWriteFolders: a.Config.AnonymousWriteFolders,
		AllowedDomains:        a.Config.AllowedDomains,
		AdminDomains:          a.Config.AdminDomains,
		CustomerFolders:       customers != nil,
		PublicAccess:          a.Config.PublicAccess,
	}, a.Logger)
}

// Server builds the HTTP server. The coalescer is returned so the caller can
// wait for in-flight webhook passes; it is nil when webhooks are disabled.
func (a *App) Server(ctx context.Context) (*server.Server, *webhook.Coalescer, error) {
	srv := server.New(server.Config{Addr: a.Config.Addr()}, a.Logger)

	g := gate.New(a.Config.Drives(), a.Resolver(), a.Logger)
	gate.NewProxy(g, a.Claims(), a.SDK, a.Logger).Register(srv)
	srv.Handle("POST /auth", a.Enricher())

	if err := a.Config.ValidateWebhook(); err != nil {
		a.Logger.Warn("webhook endpoint disabled", "reason", err)
		return srv, nil, nil
	}
	handler, err := a.SidecarHandler()
	if err != nil {
		return nil, nil, err
	}
	syncer := a.Synchronizer()
	coalescer := webhook.New(webhook.ProcessorFunc(func(ctx context.Context, resource string) error {
		return syncer.Process(ctx, resource, handler)
	}), a.Logger,
		webhook.WithTimeout(a.Config.WebhookTimeout),
		webhook.WithBaseContext(ctx),
		webhook.WithStateVerifier(webhook.StateVerifierFunc(a.verifyClientState)))
	srv.Handle("POST /webhook", coalescer)
	return srv, coalescer, nil
}

// verifyClientState checks a notification against the nonce stored in the
// registration of its resource.
func (a *App) verifyClientState(ctx context.Context, resource, clientState string) error {
	driveID, err := delta.DriveFromResource(resource)
	if err != nil {
		return err
	}
	if !a.Config.Drives().AllowsDrive(driveID) {
		return fmt.Errorf("%w: %s", delta.ErrDriveNotApproved, driveID)
	}
	return a.Store(driveID).VerifyClientState(ctx, resource, clientState)
}
