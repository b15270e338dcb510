// Package app composes the gateway: it opens the storage backend selected by
// configuration, builds the registration service, site config loader and
// version checker, and serves them through httpapi.
//
//	cmd/gateway
//	      │
//	      ▼
//	internal/app ──► internal/app/httpapi ──► internal/registration
//	      │                                        │
//	      └──► internal/storage/{memory,redis,upstash,d1} ◄┘
package app
