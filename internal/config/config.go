// Package config loads the gateway settings. Values come from an optional YAML
// file and are overridden by environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tonimelisma/onedrive-gateway/internal/policy"
)

// PathEnv names the variable holding the config file path when none is given.
const PathEnv = "ONEDRIVE_GATEWAY_CONFIG"

// Graph holds the app-only credentials.
type Graph struct {
	TenantID     string `yaml:"tenantId"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	BaseURL      string `yaml:"baseUrl"`
}

// Config holds every setting of the gateway.
type Config struct {
	Graph Graph `yaml:"graph"`

	ApprovedDrive      []string `yaml:"approvedDrive"`
	CanAccessRoot      bool     `yaml:"canAccessRoot"`
	CanWriteRoot       bool     `yaml:"canWriteRoot"`
	RegistrationFileID string   `yaml:"webhookRegistrationFileId"`

	CustomerFolderID       string   `yaml:"customerFolderId"`
	SharedResourceFolderID string   `yaml:"sharedResourceFolderId"`
	AnonymousReadFolders   []string `yaml:"anonymousReadFolders"`
	AnonymousWriteFolders  []string `yaml:"anonymousWriteFolders"`
	AllowedDomains         []string `yaml:"allowedDomains"`
	AdminDomains           []string `yaml:"adminDomains"`
	PublicAccess           bool     `yaml:"publicAccess"`
	SidecarManifest        string   `yaml:"sidecarManifest"`

	OpenIDConfigurationURL string `yaml:"openidConfigurationUrl"`
	AccessTokenSecret      string `yaml:"accessTokenSecret"`
	AccessTokenAudience    string `yaml:"accessTokenAudience"`

	PublicHost string `yaml:"publicHost"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`

	HeartbeatInterval    time.Duration `yaml:"heartbeatInterval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeatTimeout"`
	WebhookTimeout       time.Duration `yaml:"webhookTimeout"`
	SubscriptionLifetime time.Duration `yaml:"subscriptionLifetime"`
	TreeCacheTTL         time.Duration `yaml:"treeCacheTtl"`
	AccessCacheTTL       time.Duration `yaml:"accessCacheTtl"`
	LockDir              string        `yaml:"lockDir"`

	LogFormat string `yaml:"logFormat"`
	Debug     bool   `yaml:"debug"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8080,
		HeartbeatInterval: time.Hour,
		HeartbeatTimeout:  5 * time.Minute,
		WebhookTimeout:    5 * time.Minute,
		LogFormat:         "text",
	}
}

// Load reads the file at path, if any, then applies the process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path == "" {
		path, _ = lookup(PathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file '%s': %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("GRAPH_APP_TENANT", &c.Graph.TenantID)
	e.str("GRAPH_APP_CLIENT_ID", &c.Graph.ClientID)
	e.str("GRAPH_APP_SECRET", &c.Graph.ClientSecret)
	e.str("GRAPH_BASE_URL", &c.Graph.BaseURL)

	e.list("APPROVED_DRIVE", &c.ApprovedDrive)
	e.bool("CAN_ACCESS_ROOT", &c.CanAccessRoot)
	e.bool("CAN_WRITE_ROOT", &c.CanWriteRoot)
	e.str("WEBHOOK_REGISTRATION_FILE_ID", &c.RegistrationFileID)

	e.str("CUSTOMER_FOLDER_ID", &c.CustomerFolderID)
	e.str("SHARED_RESOURCE_FOLDER_ID", &c.SharedResourceFolderID)
	e.list("ANONYMOUS_READ_FOLDERS", &c.AnonymousReadFolders)
	e.list("ANONYMOUS_WRITE_FOLDERS", &c.AnonymousWriteFolders)
	e.list("ALLOWED_DOMAINS", &c.AllowedDomains)
	e.list("ADMIN_DOMAINS", &c.AdminDomains)
	e.bool("PUBLIC_ACCESS", &c.PublicAccess)
	e.str("SIDECAR_MANIFEST", &c.SidecarManifest)

	e.str("OPENID_CONFIGURATION_URL", &c.OpenIDConfigurationURL)
	e.str("ACCESS_TOKEN_SECRET", &c.AccessTokenSecret)
	e.str("ACCESS_TOKEN_AUDIENCE", &c.AccessTokenAudience)

	e.str("PUBLIC_HOST", &c.PublicHost)
	e.str("HOST", &c.Host)
	e.int("PORT", &c.Port)

	e.duration("HEARTBEAT_INTERVAL", &c.HeartbeatInterval)
	e.duration("HEARTBEAT_TIMEOUT", &c.HeartbeatTimeout)
	e.duration("WEBHOOK_PROCESS_TIMEOUT", &c.WebhookTimeout)
	e.duration("SUBSCRIPTION_LIFETIME", &c.SubscriptionLifetime)
	e.duration("TREE_CACHE_TTL", &c.TreeCacheTTL)
	e.duration("ACCESS_CACHE_TTL", &c.AccessCacheTTL)
	e.str("LOCK_DIR", &c.LockDir)

	e.str("LOG_FORMAT", &c.LogFormat)
	e.bool("DEBUG", &c.Debug)

	return errors.Join(e.errs...)
}

// Validate reports settings the gateway cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if len(c.ApprovedDrive) == 0 {
		errs = append(errs, errors.New("APPROVED_DRIVE is required"))
	}
	if c.Graph.TenantID == "" || c.Graph.ClientID == "" || c.Graph.ClientSecret == "" {
		errs = append(errs, errors.New("GRAPH_APP_TENANT, GRAPH_APP_CLIENT_ID and GRAPH_APP_SECRET are required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	return errors.Join(errs...)
}

// ValidateWebhook reports settings the webhook subsystem needs.
func (c *Config) ValidateWebhook() error {
	var errs []error
	if c.RegistrationFileID == "" {
		errs = append(errs, errors.New("WEBHOOK_REGISTRATION_FILE_ID is required"))
	}
	if c.PublicHost == "" {
		errs = append(errs, errors.New("PUBLIC_HOST is required"))
	}
	return errors.Join(errs...)
}

// Drives returns the root-level access policy.
func (c *Config) Drives() policy.DriveConfiguration {
	return policy.DriveConfiguration{
		Read:   c.CanAccessRoot,
		Write:  c.CanWriteRoot,
		Drives: append([]string(nil), c.ApprovedDrive...),
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NotificationURL is where Graph delivers change notifications.
func (c *Config) NotificationURL() string {
	host := strings.TrimSuffix(strings.TrimPrefix(c.PublicHost, "https://"), "/")
	return "https://" + host + "/webhook"
}

// WebhookResource is the resource watched for changes.
func (c *Config) WebhookResource() string {
	return "/drives/" + c.Drives().PrimaryDrive() + "/root"
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		*dst = policy.SplitList(v)
	}
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
