package storage

import (
	"context"
	"time"
)

// CallRecorder observes backend call latency.
type CallRecorder interface {
	RecordBackendCall(backend, operation string, duration time.Duration, success bool)
}

type instrumented struct {
	next Backend
	name string
	rec  CallRecorder
}

// Instrument wraps b so every call is reported to rec under name.
func Instrument(b Backend, name string, rec CallRecorder) Backend {
	if rec == nil {
		return b
	}
	return &instrumented{next: b, name: name, rec: rec}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.rec.RecordBackendCall(i.name, op, time.Since(start), err == nil)
}

func (i *instrumented) CheckUserExist(ctx context.Context, username string) (exists bool, err error) {
	defer func(start time.Time) { i.observe("check_user", start, err) }(time.Now())
	return i.next.CheckUserExist(ctx, username)
}

func (i *instrumented) RegisterUser(ctx context.Context, username, password string) (err error) {
	defer func(start time.Time) { i.observe("register_user", start, err) }(time.Now())
	return i.next.RegisterUser(ctx, username, password)
}

func (i *instrumented) GetAdminConfig(ctx context.Context) (cfg *AdminConfig, err error) {
	defer func(start time.Time) { i.observe("get_admin_config", start, err) }(time.Now())
	return i.next.GetAdminConfig(ctx)
}

func (i *instrumented) SaveAdminConfig(ctx context.Context, cfg *AdminConfig) (err error) {
	defer func(start time.Time) { i.observe("save_admin_config", start, err) }(time.Now())
	return i.next.SaveAdminConfig(ctx, cfg)
}

func (i *instrumented) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { i.observe("ping", start, err) }(time.Now())
	return i.next.Ping(ctx)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
