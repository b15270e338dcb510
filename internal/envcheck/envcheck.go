// Package envcheck validates the gateway environment for the selected storage
// backend and summarizes it without exposing secret values.
package envcheck

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/moontv/gateway/internal/logging"
)

// DefaultSiteName is reported when SITE_NAME is unset.
const DefaultSiteName = "MoonTV"

const (
	minUpstashTokenLength = 10
	minAdminPasswordLen   = 6
)

// Env is the subset of configuration the validator inspects.
type Env struct {
	StorageType    string
	UpstashURL     string
	UpstashToken   string
	RedisURL       string
	D1DatabaseID   string
	AdminUsername  string
	AdminPassword  string
	SiteName       string
	EnableRegister bool
	AppEnv         string
	Docker         bool
}

// Result is the outcome of one validation pass.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks env for storageType. Only missing required variables are
// errors; everything else is a warning.
func Validate(storageType string, env Env) Result {
	errs := []string{}
	warnings := []string{}

	if storageType == "" {
		storageType = "localstorage"
	}

	switch storageType {
	case "upstash":
		errs, warnings = checkUpstash(env, errs, warnings)
	case "redis":
		errs, warnings = checkRedis(env, errs, warnings)
	case "d1":
		errs = checkD1(env, errs)
	case "localstorage":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown storage type: %s", storageType))
	}

	warnings = checkCommon(storageType, env, warnings)

	return Result{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

func checkUpstash(env Env, errs, warnings []string) ([]string, []string) {
	if env.UpstashURL == "" {
		errs = append(errs, missing("UPSTASH_URL"))
	} else if !strings.HasPrefix(env.UpstashURL, "https://") {
		warnings = append(warnings, "UPSTASH_URL should start with https://")
	}

	if env.UpstashToken == "" {
		errs = append(errs, missing("UPSTASH_TOKEN"))
	} else if len(env.UpstashToken) < minUpstashTokenLength {
		warnings = append(warnings, "UPSTASH_TOKEN looks too short")
	}
	return errs, warnings
}

func checkRedis(env Env, errs, warnings []string) ([]string, []string) {
	if env.RedisURL == "" {
		errs = append(errs, missing("REDIS_URL"))
	} else if !strings.HasPrefix(env.RedisURL, "redis://") && !strings.HasPrefix(env.RedisURL, "rediss://") {
		warnings = append(warnings, "REDIS_URL should start with redis:// or rediss://")
	}
	return errs, warnings
}

func checkD1(env Env, errs []string) []string {
	if env.D1DatabaseID == "" {
		errs = append(errs, missing("D1_DATABASE_ID"))
	}
	return errs
}

func checkCommon(storageType string, env Env, warnings []string) []string {
	if env.AdminUsername == "" {
		warnings = append(warnings, "ADMIN_USERNAME is not set (administrator username)")
	}

	if env.AdminPassword == "" {
		warnings = append(warnings, "ADMIN_PASSWORD is not set (administrator password)")
	} else if len(env.AdminPassword) < minAdminPasswordLen {
		warnings = append(warnings, fmt.Sprintf("ADMIN_PASSWORD should be at least %d characters", minAdminPasswordLen))
	}

	if env.EnableRegister && storageType == "localstorage" {
		warnings = append(warnings, "registration is enabled without a database; use a database storage type")
	}

	if env.SiteName == "" {
		warnings = append(warnings, "SITE_NAME is not set (site name)")
	}
	return warnings
}

func missing(name string) string {
	return "missing required environment variable: " + name
}

// Report logs r at a level matching its content.
func Report(log *logging.Logger, storageType string, r Result) {
	entry := log.Logger.WithFields(logrus.Fields{
		"service":      log.Service(),
		"storage_type": storageType,
	})
	for _, e := range r.Errors {
		entry.Error(e)
	}
	for _, w := range r.Warnings {
		entry.Warn(w)
	}
	if len(r.Errors) == 0 && len(r.Warnings) == 0 {
		entry.Info("environment validation passed")
	}
}
