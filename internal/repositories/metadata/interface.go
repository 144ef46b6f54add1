// Package metadata stores small key/value settings of the local installation:
// device id, signed-in user, session token and the auto-sync preference.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyDeviceID  = "device_id"
	KeyUserID    = "user_id"
	KeyAuthToken = "auth_token"
	KeyAutoSync  = "auto_sync"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetString reads key as text; a missing key yields "".
func GetString(ctx context.Context, r Repository, key string) (string, error) {
	v, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func SetString(ctx context.Context, r Repository, key, value string) error {
	return r.Set(ctx, key, []byte(value))
}

// GetBool reads key as a boolean flag stored as "true"/"false".
func GetBool(ctx context.Context, r Repository, key string) (bool, error) {
	v, err := GetString(ctx, r, key)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func SetBool(ctx context.Context, r Repository, key string, value bool) error {
	if value {
		return SetString(ctx, r, key, "true")
	}
	return SetString(ctx, r, key, "false")
}
