// Package upstash is a storage backend on Upstash Redis, reached through its
// REST API rather than a TCP connection.
package upstash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/moontv/gateway/internal/httputil"
	"github.com/moontv/gateway/internal/storage"
)

const (
	adminConfigKey  = "admin:config"
	maxCommandReply = 1 << 20
)

func userPasswordKey(username string) string {
	return "u:" + username + ":pwd"
}

// Config configures the REST client.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
	// Client overrides the HTTP client. Tests use it.
	Client *httputil.Client
}

// Store implements storage.Backend on the Upstash REST API.
type Store struct {
	client *httputil.Client
}

var _ storage.Backend = (*Store)(nil)

// New creates a store. URL and token are both required.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("upstash: missing environment variable UPSTASH_URL")
	}
	if cfg.Token == "" {
		return nil, errors.New("upstash: missing environment variable UPSTASH_TOKEN")
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = httputil.NewClient(httputil.ClientConfig{
			BaseURL:     cfg.URL,
			BearerToken: cfg.Token,
			Timeout:     timeout,
		})
	}
	return &Store{client: client}, nil
}

// command runs one Redis command and returns its "result" field.
func (s *Store) command(ctx context.Context, args ...interface{}) (gjson.Result, error) {
	resp, err := s.client.Post(ctx, "", args)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("upstash: %s: %w", args[0], err)
	}
	defer resp.Body.Close()

	body, err := httputil.ReadAllStrict(resp.Body, maxCommandReply)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("upstash: %s: read reply: %w", args[0], err)
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("upstash: %s: unexpected reply (status %d)", args[0], resp.StatusCode)
	}
	reply := gjson.ParseBytes(body)
	if msg := reply.Get("error"); msg.Exists() {
		return gjson.Result{}, fmt.Errorf("upstash: %s: %s", args[0], msg.String())
	}
	if resp.StatusCode >= 400 {
		return gjson.Result{}, fmt.Errorf("upstash: %s: status %d", args[0], resp.StatusCode)
	}
	return reply.Get("result"), nil
}

func (s *Store) CheckUserExist(ctx context.Context, username string) (bool, error) {
	res, err := s.command(ctx, "EXISTS", userPasswordKey(username))
	if err != nil {
		return false, err
	}
	return res.Int() > 0, nil
}

// RegisterUser uses SET NX; a null reply means the key already existed.
func (s *Store) RegisterUser(ctx context.Context, username, password string) error {
	hash, err := storage.HashPassword(password)
	if err != nil {
		return err
	}
	res, err := s.command(ctx, "SET", userPasswordKey(username), hash, "NX")
	if err != nil {
		return err
	}
	if res.Type == gjson.Null || !strings.EqualFold(res.String(), "OK") {
		return storage.ErrUserExists
	}
	return nil
}

func (s *Store) GetAdminConfig(ctx context.Context) (*storage.AdminConfig, error) {
	res, err := s.command(ctx, "GET", adminConfigKey)
	if err != nil {
		return nil, err
	}
	if res.Type == gjson.Null {
		return nil, nil
	}

	var cfg storage.AdminConfig
	if err := json.Unmarshal([]byte(res.String()), &cfg); err != nil {
		return nil, fmt.Errorf("upstash: decode admin config: %w", err)
	}
	return &cfg, nil
}

func (s *Store) SaveAdminConfig(ctx context.Context, cfg *storage.AdminConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("upstash: encode admin config: %w", err)
	}
	_, err = s.command(ctx, "SET", adminConfigKey, string(raw))
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.command(ctx, "PING")
	return err
}

// Close is a no-op; the REST client holds no connection.
func (s *Store) Close() error {
	return nil
}
