// Package siteconfig resolves the admin configuration document: the copy
// stored in the backend when one exists, otherwise defaults built from an
// optional YAML seed file and the environment.
package siteconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/moontv/gateway/internal/storage"
)

// DefaultSiteName is used when neither the seed nor SITE_NAME set one.
const DefaultSiteName = "MoonTV"

// Defaults are the environment-derived fallbacks.
type Defaults struct {
	SiteName       string
	EnableRegister bool
	AdminUsername  string
}

// Seed is the on-disk YAML form of the default admin configuration.
type Seed struct {
	Site struct {
		Name         string `yaml:"name"`
		Announcement string `yaml:"announcement"`
	} `yaml:"site"`
	Users struct {
		// AllowRegister overrides ENABLE_REGISTER when present.
		AllowRegister *bool                `yaml:"allow_register"`
		List          []storage.UserRecord `yaml:"list"`
	} `yaml:"users"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML. Unknown keys are rejected.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &seed, nil
}

// Loader returns the current admin configuration.
type Loader struct {
	backend  storage.Backend
	defaults Defaults
	seed     *Seed
}

// NewLoader creates a loader. seed may be nil.
func NewLoader(backend storage.Backend, defaults Defaults, seed *Seed) *Loader {
	return &Loader{backend: backend, defaults: defaults, seed: seed}
}

// Load returns the backend document, or the defaults when the backend has
// none. The result is always a fresh copy the caller may modify.
func (l *Loader) Load(ctx context.Context) (*storage.AdminConfig, error) {
	if l.backend != nil {
		cfg, err := l.backend.GetAdminConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load admin config: %w", err)
		}
		if cfg != nil {
			return cfg.Clone(), nil
		}
	}
	return l.Default(), nil
}

// Default builds the configuration used before the backend holds one.
func (l *Loader) Default() *storage.AdminConfig {
	cfg := &storage.AdminConfig{}
	cfg.UserConfig.AllowRegister = l.defaults.EnableRegister

	if l.seed != nil {
		cfg.SiteConfig.SiteName = l.seed.Site.Name
		cfg.SiteConfig.Announcement = l.seed.Site.Announcement
		if l.seed.Users.AllowRegister != nil {
			cfg.UserConfig.AllowRegister = *l.seed.Users.AllowRegister
		}
		for _, u := range l.seed.Users.List {
			if u.Username == "" || cfg.HasUser(u.Username) {
				continue
			}
			if u.Role == "" {
				u.Role = storage.RoleUser
			}
			cfg.UserConfig.Users = append(cfg.UserConfig.Users, u)
		}
	}

	if l.defaults.SiteName != "" {
		cfg.SiteConfig.SiteName = l.defaults.SiteName
	}
	if cfg.SiteConfig.SiteName == "" {
		cfg.SiteConfig.SiteName = DefaultSiteName
	}

	if owner := l.defaults.AdminUsername; owner != "" && !cfg.HasUser(owner) {
		cfg.UserConfig.Users = append([]storage.UserRecord{{Username: owner, Role: storage.RoleOwner}}, cfg.UserConfig.Users...)
	}
	return cfg
}
