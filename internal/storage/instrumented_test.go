package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	backend, op string
	success     bool
}

type recorder struct {
	calls []call
}

func (r *recorder) RecordBackendCall(backend, operation string, _ time.Duration, success bool) {
	r.calls = append(r.calls, call{backend, operation, success})
}

type stubBackend struct {
	err error
}

func (s stubBackend) CheckUserExist(context.Context, string) (bool, error) { return true, s.err }
func (s stubBackend) RegisterUser(context.Context, string, string) error   { return s.err }
func (s stubBackend) GetAdminConfig(context.Context) (*AdminConfig, error) { return nil, s.err }
func (s stubBackend) SaveAdminConfig(context.Context, *AdminConfig) error  { return s.err }
func (s stubBackend) Ping(context.Context) error                           { return s.err }
func (s stubBackend) Close() error                                         { return nil }

func TestInstrument_RecordsCalls(t *testing.T) {
	rec := &recorder{}
	b := Instrument(stubBackend{}, "redis", rec)
	ctx := context.Background()

	exists, err := b.CheckUserExist(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, b.RegisterUser(ctx, "alice", "pw"))
	require.NoError(t, b.SaveAdminConfig(ctx, &AdminConfig{}))

	assert.Equal(t, []call{
		{"redis", "check_user", true},
		{"redis", "register_user", true},
		{"redis", "save_admin_config", true},
	}, rec.calls)
}

func TestInstrument_RecordsFailures(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	b := Instrument(stubBackend{err: boom}, "d1", rec)

	assert.ErrorIs(t, b.Ping(context.Background()), boom)
	_, err := b.GetAdminConfig(context.Background())
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []call{{"d1", "ping", false}, {"d1", "get_admin_config", false}}, rec.calls)
}

func TestInstrument_NilRecorder(t *testing.T) {
	b := stubBackend{}
	assert.Equal(t, Backend(b), Instrument(b, "memory", nil))
}
