package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageConfig "github.com/tigerroll/statreg/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/statreg/pkg/batch/core/config"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// ConnectionFactory opens one connection of a backend.
type ConnectionFactory func(ctx context.Context, cfg storageConfig.StorageConfig, name string) (StorageConnection, error)

// CachingProvider is a StorageProvider that opens connections through a factory
// and keeps them until CloseAll.
type CachingProvider struct {
	cfg         *coreConfig.Config
	typ         string
	factory     ConnectionFactory
	connections map[string]StorageConnection
	mu          sync.Mutex
}

// NewCachingProvider creates a provider for backend typ.
func NewCachingProvider(cfg *coreConfig.Config, typ string, factory ConnectionFactory) *CachingProvider {
	return &CachingProvider{
		cfg:         cfg,
		typ:         typ,
		factory:     factory,
		connections: make(map[string]StorageConnection),
	}
}

// Type implements StorageProvider.
func (p *CachingProvider) Type() string { return p.typ }

// GetConnection implements StorageProvider.
func (p *CachingProvider) GetConnection(ctx context.Context, name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	cfg, err := LookupStorageConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if cfg.Type != p.typ {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.typ, cfg.Type)
	}
	conn, err := p.factory(ctx, cfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage connection '%s': %w", p.typ, name, err)
	}
	p.connections[name] = conn
	logger.Debugf("Created new %s storage connection '%s'.", p.typ, name)
	return conn, nil
}

// CloseAll implements StorageProvider.
func (p *CachingProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close storage connection '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// LookupStorageConfig decodes the storage entry called name.
func LookupStorageConfig(cfg *coreConfig.Config, name string) (storageConfig.StorageConfig, error) {
	var sc storageConfig.StorageConfig
	raw, ok := cfg.Statreg.Storage[name]
	if !ok {
		return sc, fmt.Errorf("storage configuration '%s' not found under statreg.storage", name)
	}
	if err := coreConfig.DecodeSection(raw, &sc); err != nil {
		return sc, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return sc, nil
}
