package changelog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/moontv/gateway/internal/httputil"
	"github.com/moontv/gateway/internal/logging"
)

// FetchRecorder counts remote fetches.
type FetchRecorder interface {
	RecordChangelogFetch(success bool)
}

// Status is the cached result of the last check.
type Status struct {
	Current      string       `json:"current"`
	Latest       string       `json:"latest,omitempty"`
	UpdateStatus UpdateStatus `json:"updateStatus"`
	Entries      []Entry      `json:"changelog"`
	CheckedAt    *time.Time   `json:"checkedAt,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// CheckerOptions configures a Checker.
type CheckerOptions struct {
	URL            string
	CurrentVersion string
	Timeout        time.Duration
	Logger         *logging.Logger
	Metrics        FetchRecorder
	// Client overrides the HTTP client. Tests use it.
	Client *httputil.Client
}

// Checker fetches the remote changelog and caches the parsed result.
type Checker struct {
	client  *httputil.Client
	current string
	log     *logging.Logger
	metrics FetchRecorder
	now     func() time.Time

	mu     sync.RWMutex
	status Status

	scheduler *cron.Cron
}

// NewChecker creates a checker. Until the first refresh the status reports a
// failed fetch.
func NewChecker(opts CheckerOptions) *Checker {
	client := opts.Client
	if client == nil {
		client = httputil.NewClient(httputil.ClientConfig{BaseURL: opts.URL, Timeout: opts.Timeout})
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewDiscard()
	}
	return &Checker{
		client:  client,
		current: opts.CurrentVersion,
		log:     log,
		metrics: opts.Metrics,
		now:     time.Now,
		status: Status{
			Current:      opts.CurrentVersion,
			UpdateStatus: StatusFetchFailed,
			Entries:      []Entry{},
		},
	}
}

// Status returns the cached status.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.status
	s.Entries = make([]Entry, len(c.status.Entries))
	copy(s.Entries, c.status.Entries)
	return s
}

// Refresh fetches and parses the remote changelog. On failure the previous
// entries are kept and the status becomes fetch_failed.
func (c *Checker) Refresh(ctx context.Context) error {
	entries, err := c.fetch(ctx)
	if c.metrics != nil {
		c.metrics.RecordChangelogFetch(err == nil)
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.CheckedAt = &now
	if err != nil {
		c.status.UpdateStatus = StatusFetchFailed
		c.status.Error = err.Error()
		c.log.WithContext(ctx).WithError(err).Warn("changelog refresh failed")
		return err
	}

	latest := Latest(entries)
	c.status.Entries = entries
	c.status.Latest = latest
	c.status.UpdateStatus = Compare(c.current, latest)
	c.status.Error = ""
	c.log.WithContext(ctx).WithField("latest", latest).Debug("changelog refreshed")
	return nil
}

func (c *Checker) fetch(ctx context.Context) ([]Entry, error) {
	resp, err := c.client.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("fetch changelog: %w", err)
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch changelog: %w", err)
	}
	entries := Parse(string(body))
	if len(entries) == 0 {
		return nil, fmt.Errorf("fetch changelog: no versions found")
	}
	return entries, nil
}

// Start refreshes once in the background and then on schedule, a standard
// cron expression or descriptor such as "@every 1h".
func (c *Checker) Start(schedule string) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, c.refreshJob); err != nil {
		return fmt.Errorf("invalid changelog schedule %q: %w", schedule, err)
	}

	c.mu.Lock()
	c.scheduler = scheduler
	c.mu.Unlock()

	scheduler.Start()
	go c.refreshJob()
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (c *Checker) Stop() {
	c.mu.RLock()
	scheduler := c.scheduler
	c.mu.RUnlock()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}

func (c *Checker) refreshJob() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	_ = c.Refresh(ctx)
}
