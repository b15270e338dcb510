// Package registration implements user self-registration: environment and
// mode checks, duplicate detection, persistence, and the signed auth cookie.
package registration

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/moontv/gateway/internal/authcookie"
	"github.com/moontv/gateway/internal/envcheck"
	"github.com/moontv/gateway/internal/errors"
	"github.com/moontv/gateway/internal/logging"
	"github.com/moontv/gateway/internal/siteconfig"
	"github.com/moontv/gateway/internal/storage"
)

// Recorder receives one outcome per registration attempt.
type Recorder interface {
	RecordRegistration(outcome string)
}

// Options configures a Service.
type Options struct {
	// StorageType is the normalized STORAGE_TYPE.
	StorageType string
	// Env is validated on every request.
	Env envcheck.Env
	// AdminUsername is reserved and can never be registered.
	AdminUsername string
	// Secret signs the auth cookie.
	Secret  string
	Backend storage.Backend
	Loader  *siteconfig.Loader
	Logger  *logging.Logger
	Metrics Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service runs registrations. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	opts Options
}

// Request is the registration body.
type Request struct {
	Username string
	Password string
}

// Result describes a successful registration.
type Result struct {
	Username string
	Payload  authcookie.Payload
	Cookie   *http.Cookie
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscard()
	}
	return &Service{opts: opts}
}

// SupportsRegistration reports whether storageType persists users server-side.
func SupportsRegistration(storageType string) bool {
	switch storageType {
	case "redis", "upstash", "d1":
		return true
	}
	return false
}

// Register runs the full flow against body. Every failure is a
// *errors.ServiceError carrying the client-facing message and status.
func (s *Service) Register(ctx context.Context, body io.Reader) (res *Result, err error) {
	log := s.opts.Logger.WithContext(ctx).WithField("storage_type", s.opts.StorageType)

	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			if se := errors.GetServiceError(err); se != nil {
				outcome = string(se.Code)
			}
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordRegistration(outcome)
		}
	}()

	validation := envcheck.Validate(s.opts.StorageType, s.opts.Env)
	log.WithField("environment", envcheck.Summarize(s.opts.Env)).Debug("registration request")
	if !validation.Valid {
		log.WithField("errors", validation.Errors).Error("environment validation failed, refusing registration")
		return nil, errors.Configuration(validation.Errors)
	}

	if !SupportsRegistration(s.opts.StorageType) {
		return nil, errors.ModeNotSupported()
	}

	cfg, err := s.opts.Loader.Load(ctx)
	if err != nil {
		log.WithError(err).Error("failed to load admin config")
		return nil, ClassifyRequest(err)
	}
	if !cfg.UserConfig.AllowRegister {
		return nil, errors.RegistrationClosed()
	}

	req, err := DecodeRequest(body)
	if err != nil {
		log.WithError(err).Warn("invalid registration request")
		return nil, ClassifyRequest(err)
	}
	ctx = logging.WithUsername(ctx, req.Username)
	log = s.opts.Logger.WithContext(ctx).WithField("storage_type", s.opts.StorageType)

	if req.Username == s.opts.AdminUsername {
		s.opts.Logger.LogSecurityEvent(ctx, "reserved_username", map[string]interface{}{"reason": "admin identity"})
		return nil, errors.UserExists()
	}

	if err := s.persist(ctx, cfg, req); err != nil {
		if errors.Is(err, errors.CodeUserExists) {
			return nil, err
		}
		log.WithError(err).Error("storage operation failed")
		return nil, ClassifyBackend(err)
	}

	now := s.opts.Now()
	payload := authcookie.Build(req.Username, s.opts.Secret, now)
	value, err := authcookie.Encode(payload)
	if err != nil {
		log.WithError(err).Error("failed to encode auth cookie")
		return nil, errors.Internal(msgServer, err)
	}

	log.Info("user registered")
	return &Result{
		Username: req.Username,
		Payload:  payload,
		Cookie:   authcookie.NewCookie(value, now),
	}, nil
}

// persist checks for a duplicate, stores the credentials, then records the
// user in the admin config. The two writes are not atomic: a failure of the
// second leaves the credentials stored without a config entry.
func (s *Service) persist(ctx context.Context, cfg *storage.AdminConfig, req Request) error {
	exists, err := s.opts.Backend.CheckUserExist(ctx, req.Username)
	if err != nil {
		return err
	}
	if exists {
		return errors.UserExists()
	}

	if err := s.opts.Backend.RegisterUser(ctx, req.Username, req.Password); err != nil {
		if stderrors.Is(err, storage.ErrUserExists) {
			return errors.UserExists()
		}
		return err
	}

	cfg.AddUser(req.Username, storage.RoleUser)
	if err := s.opts.Backend.SaveAdminConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save admin config after registration: %w", err)
	}
	return nil
}

// DecodeRequest parses {"username": ..., "password": ...}. Both fields must be
// non-empty strings.
func DecodeRequest(body io.Reader) (Request, error) {
	var raw struct {
		Username interface{} `json:"username"`
		Password interface{} `json:"password"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return Request{}, fmt.Errorf("decode json body: %w", err)
	}

	username, ok := raw.Username.(string)
	if !ok || username == "" {
		return Request{}, errors.InvalidInput("username is required")
	}
	password, ok := raw.Password.(string)
	if !ok || password == "" {
		return Request{}, errors.InvalidInput("password is required")
	}
	return Request{Username: username, Password: password}, nil
}
