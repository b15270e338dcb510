package registration

import (
	"net/http"
	"strings"

	"github.com/moontv/gateway/internal/errors"
)

const (
	msgUpstashConnection = "Upstash Redis connection failed, check the environment variable configuration"
	msgDatabaseConn      = "database connection failed, try again later"
	msgDatabase          = "database error"
	msgUpstashConfig     = "Upstash configuration error, check the environment variables"
	msgServer            = "server error"
)

// rule maps any of its substrings, matched case-insensitively against an
// error message, to a client-facing error. Rules are tried in order.
type rule struct {
	patterns []string
	build    func(err error) *errors.ServiceError
}

func (r rule) matches(msg string) bool {
	for _, p := range r.patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// backendRules classify failures of the existence check and the two writes.
var backendRules = []rule{
	{
		patterns: []string{"upstash", "redis"},
		build: func(err error) *errors.ServiceError {
			return errors.Backend(msgUpstashConnection, err)
		},
	},
	{
		patterns: []string{"environment variable"},
		build: func(err error) *errors.ServiceError {
			return errors.Backend(err.Error(), err)
		},
	},
	{
		patterns: []string{"connection", "econnrefused"},
		build: func(err error) *errors.ServiceError {
			return errors.Backend(msgDatabaseConn, err)
		},
	},
}

// requestRules classify anything else that fails while serving a request.
var requestRules = []rule{
	{
		patterns: []string{"json"},
		build:    errors.MalformedRequest,
	},
	{
		patterns: []string{"upstash", "environment variable"},
		build: func(err error) *errors.ServiceError {
			return errors.New(errors.CodeConfiguration, msgUpstashConfig, http.StatusInternalServerError, err)
		},
	},
}

func classify(rules []rule, err error, fallback func(error) *errors.ServiceError) *errors.ServiceError {
	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		if r.matches(msg) {
			return r.build(err)
		}
	}
	return fallback(err)
}

// ClassifyBackend maps a storage failure to a 500 with a best-effort message.
func ClassifyBackend(err error) *errors.ServiceError {
	if se := errors.GetServiceError(err); se != nil {
		return se
	}
	return classify(backendRules, err, func(err error) *errors.ServiceError {
		return errors.Backend(msgDatabase, err)
	})
}

// ClassifyRequest maps a failure outside the storage stage.
func ClassifyRequest(err error) *errors.ServiceError {
	if se := errors.GetServiceError(err); se != nil {
		return se
	}
	return classify(requestRules, err, func(err error) *errors.ServiceError {
		return errors.Internal(msgServer, err)
	})
}
