// Package device issues and persists the identifier of this installation.
package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/billsync/internal/repositories/metadata"
	"github.com/google/uuid"
)

// Provider hands out the device id, generating it on first use.
type Provider struct {
	meta metadata.Repository

	mu sync.Mutex
	id string
}

func NewProvider(meta metadata.Repository) *Provider {
	return &Provider{meta: meta}
}

// DeviceID returns the persisted id, creating "device_<uuid>" when none
// exists yet. The result is cached for the life of the Provider.
func (p *Provider) DeviceID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}

	id, err := metadata.GetString(ctx, p.meta, metadata.KeyDeviceID)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}

	if id == "" {
		id = "device_" + uuid.NewString()
		if err := metadata.SetString(ctx, p.meta, metadata.KeyDeviceID, id); err != nil {
			return "", fmt.Errorf("persist device id: %w", err)
		}
	}

	p.id = id
	return id, nil
}
