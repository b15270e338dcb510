package changelog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moontv/gateway/internal/httputil"
)

const sample = `# Changelog

## [Unreleased]

- not released yet

## [1.2.0] (2025-08-20)

### Added

- Registration page
- Server config endpoint

### Changed

* Faster search

### Fixed

- Cookie expiry

### Security

- ignored section

## [1.1.10] (2025-08-01)

### Fixed

- Typo in settings
`

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type fetchCounter struct {
	ok, failed int
}

func (f *fetchCounter) RecordChangelogFetch(success bool) {
	if success {
		f.ok++
	} else {
		f.failed++
	}
}

func TestParse(t *testing.T) {
	entries := Parse(sample)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "1.2.0", first.Version)
	assert.Equal(t, "2025-08-20", first.Date)
	assert.Equal(t, []string{"Registration page", "Server config endpoint"}, first.Added)
	assert.Equal(t, []string{"Faster search"}, first.Changed)
	assert.Equal(t, []string{"Cookie expiry"}, first.Fixed)

	second := entries[1]
	assert.Equal(t, "1.1.10", second.Version)
	assert.Empty(t, second.Added)
	assert.Equal(t, []string{"Typo in settings"}, second.Fixed)
}

func TestParse_DashDateAndEmpty(t *testing.T) {
	entries := Parse("## 2.0.0 - 2026-01-01\n### Added\n- thing\n")
	require.Len(t, entries, 1)
	assert.Equal(t, "2026-01-01", entries[0].Date)
	assert.Equal(t, []string{"thing"}, entries[0].Added)

	assert.Empty(t, Parse("just text\n"))
}

func TestParse_PreReleaseVersionKeepsSuffix(t *testing.T) {
	entries := Parse("## [1.3.0-beta.1] (2026-02-01)\n### Added\n- preview\n\n## 1.2.0+build.7 - 2026-01-01\n")
	require.Len(t, entries, 2)
	assert.Equal(t, "1.3.0-beta.1", entries[0].Version)
	assert.Equal(t, "2026-02-01", entries[0].Date)
	assert.Equal(t, []string{"preview"}, entries[0].Added)
	assert.Equal(t, "1.2.0+build.7", entries[1].Version)
	assert.Equal(t, "2026-01-01", entries[1].Date)

	assert.Equal(t, "1.3.0-beta.1", Latest(entries))
	assert.Equal(t, StatusHasUpdate, Compare("1.2.0", entries[0].Version))
}

func TestParse_NonReleaseHeadingClosesEntry(t *testing.T) {
	content := `## [1.0.0] (2026-01-01)

### Added

- shipped

## Notes

### Added

- not part of 1.0.0

## [0.9.0] (2025-12-01)

### Fixed

- old bug
`
	entries := Parse(content)
	require.Len(t, entries, 2)
	assert.Equal(t, "1.0.0", entries[0].Version)
	assert.Equal(t, []string{"shipped"}, entries[0].Added)
	assert.Equal(t, "0.9.0", entries[1].Version)
	assert.Equal(t, []string{"old bug"}, entries[1].Fixed)
	assert.Empty(t, entries[1].Added)
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0", 0},
		{"1.2", "1.2.0", 0},
		{"1.10.0", "1.9.9", 1},
		{"v1.0.0", "1.0.1", -1},
		{"2.0.0-beta", "2.0.0", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompareVersions(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestCompareAndLatest(t *testing.T) {
	assert.Equal(t, StatusHasUpdate, Compare("1.1.10", "1.2.0"))
	assert.Equal(t, StatusNoUpdate, Compare("1.2.0", "1.2.0"))
	assert.Equal(t, StatusNoUpdate, Compare("1.3.0", "1.2.0"))
	assert.Equal(t, StatusFetchFailed, Compare("1.2.0", ""))

	assert.Equal(t, "1.2.0", Latest(Parse(sample)))
	assert.Equal(t, "", Latest(nil))
}

func TestChecker_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sample)
	}))
	defer server.Close()

	counter := &fetchCounter{}
	c := NewChecker(CheckerOptions{URL: server.URL, CurrentVersion: "1.1.10", Metrics: counter})

	initial := c.Status()
	assert.Equal(t, StatusFetchFailed, initial.UpdateStatus)
	assert.NotNil(t, initial.Entries)

	require.NoError(t, c.Refresh(context.Background()))

	st := c.Status()
	assert.Equal(t, "1.1.10", st.Current)
	assert.Equal(t, "1.2.0", st.Latest)
	assert.Equal(t, StatusHasUpdate, st.UpdateStatus)
	assert.Len(t, st.Entries, 2)
	assert.NotNil(t, st.CheckedAt)
	assert.Equal(t, 1, counter.ok)
}

func TestChecker_RefreshFailureKeepsEntries(t *testing.T) {
	var fail atomic.Bool
	client := httputil.NewClient(httputil.ClientConfig{
		BaseURL: "https://example.test/CHANGELOG",
		Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			if fail.Load() {
				return nil, errors.New("dial tcp: connection refused")
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(sample)),
				Header:     make(http.Header),
			}, nil
		}),
	})

	counter := &fetchCounter{}
	c := NewChecker(CheckerOptions{CurrentVersion: "1.2.0", Client: client, Metrics: counter})
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, StatusNoUpdate, c.Status().UpdateStatus)

	fail.Store(true)
	require.Error(t, c.Refresh(context.Background()))

	st := c.Status()
	assert.Equal(t, StatusFetchFailed, st.UpdateStatus)
	assert.Len(t, st.Entries, 2)
	assert.Contains(t, st.Error, "connection refused")
	assert.Equal(t, 1, counter.failed)
}

func TestChecker_RefreshRejectsEmptyDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not a changelog</html>")
	}))
	defer server.Close()

	c := NewChecker(CheckerOptions{URL: server.URL, CurrentVersion: "1.0.0"})
	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no versions found")
}

func TestChecker_StartRejectsBadSchedule(t *testing.T) {
	c := NewChecker(CheckerOptions{URL: "http://127.0.0.1:1", CurrentVersion: "1.0.0"})
	assert.Error(t, c.Start("not a schedule"))
	c.Stop()
}

func TestChecker_StartRefreshesImmediately(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, sample)
	}))
	defer server.Close()

	c := NewChecker(CheckerOptions{URL: server.URL, CurrentVersion: "1.0.0"})
	require.NoError(t, c.Start("@every 1h"))
	defer c.Stop()

	require.Eventually(t, func() bool {
		return c.Status().UpdateStatus == StatusHasUpdate
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, hits.Load(), int32(1))
}
