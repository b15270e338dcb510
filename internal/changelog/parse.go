// Package changelog parses the project CHANGELOG and checks the running
// version against the published one.
package changelog

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// Entry is one released version.
type Entry struct {
	Version string   `json:"version"`
	Date    string   `json:"date"`
	Added   []string `json:"added"`
	Changed []string `json:"changed"`
	Fixed   []string `json:"fixed"`
}

var (
	versionHeading = regexp.MustCompile(`^##\s+(?:\[(v?[0-9][^\]]*)\]|(v?[0-9][0-9A-Za-z.+-]*))\s*(?:\(([^)]*)\)|-\s*(\S+))?\s*$`)
	sectionHeading = regexp.MustCompile(`^###\s+(\w+)`)
)

// Parse reads entries in document order, newest first as published.
// Sections other than Added, Changed and Fixed are ignored.
func Parse(content string) []Entry {
	var (
		entries []Entry
		current *Entry
		section string
	)

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := versionHeading.FindStringSubmatch(line); m != nil {
			if current != nil {
				entries = append(entries, *current)
			}
			version := m[1]
			if version == "" {
				version = m[2]
			}
			date := m[3]
			if date == "" {
				date = m[4]
			}
			current = &Entry{Version: strings.TrimSpace(version), Date: strings.TrimSpace(date)}
			section = ""
			continue
		}
		if strings.HasPrefix(line, "## ") {
			// Non-release heading such as "## [Unreleased]" closes the open entry.
			if current != nil {
				entries = append(entries, *current)
				current = nil
			}
			section = ""
			continue
		}
		if current == nil {
			continue
		}

		if m := sectionHeading.FindStringSubmatch(line); m != nil {
			section = strings.ToLower(m[1])
			continue
		}

		item, ok := bullet(line)
		if !ok {
			continue
		}
		switch section {
		case "added":
			current.Added = append(current.Added, item)
		case "changed":
			current.Changed = append(current.Changed, item)
		case "fixed":
			current.Fixed = append(current.Fixed, item)
		}
	}
	if current != nil {
		entries = append(entries, *current)
	}
	return entries
}

func bullet(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, prefix) {
			item := strings.TrimSpace(line[len(prefix):])
			return item, item != ""
		}
	}
	return "", false
}

// CompareVersions compares dotted numeric versions. A leading "v" and any
// pre-release or build suffix are ignored; missing components count as zero.
func CompareVersions(a, b string) int {
	pa, pb := versionParts(a), versionParts(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	var parts []int
	for _, s := range strings.Split(v, ".") {
		n, err := strconv.Atoi(s)
		if err != nil {
			n = 0
		}
		parts = append(parts, n)
	}
	return parts
}

// UpdateStatus is the result of a version check.
type UpdateStatus string

const (
	StatusHasUpdate   UpdateStatus = "has_update"
	StatusNoUpdate    UpdateStatus = "no_update"
	StatusFetchFailed UpdateStatus = "fetch_failed"
)

// Compare reports whether remote is newer than current.
func Compare(current, remote string) UpdateStatus {
	if remote == "" {
		return StatusFetchFailed
	}
	if CompareVersions(remote, current) > 0 {
		return StatusHasUpdate
	}
	return StatusNoUpdate
}

// Latest returns the highest version in entries, or "".
func Latest(entries []Entry) string {
	latest := ""
	for _, e := range entries {
		if latest == "" || CompareVersions(e.Version, latest) > 0 {
			latest = e.Version
		}
	}
	return latest
}
