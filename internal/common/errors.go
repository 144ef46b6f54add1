// Package common defines the sentinel errors shared by the sync engine, its
// stores and the CLI. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Sync entry point guards.
	ErrOffline         = errors.New("offline")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrSyncInProgress  = errors.New("sync already in progress")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	ErrUnknownCollection = errors.New("unknown collection")
)
