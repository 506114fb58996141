package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Registry keeps one client per cluster name and falls back to a default.
type Registry struct {
	defaultName string
	clients     map[string]Client
}

// RegistryConfig lists the default RPC endpoint and optional per-cluster overrides.
type RegistryConfig struct {
	DefaultRPCURL string
	Overrides     map[string]string
}

// NewRegistry builds clients for the default endpoint and every override.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if strings.TrimSpace(cfg.DefaultRPCURL) == "" {
		return nil, errors.New("default rpc url is required")
	}
	clients := make(map[string]Client)
	def, err := NewRPCClient(Config{Name: "default", RPCURL: cfg.DefaultRPCURL})
	if err != nil {
		return nil, err
	}
	clients["default"] = def

	for name, url := range cfg.Overrides {
		if strings.TrimSpace(url) == "" {
			continue
		}
		client, err := NewRPCClient(Config{Name: name, RPCURL: url})
		if err != nil {
			return nil, fmt.Errorf("init cluster %s: %w", name, err)
		}
		clients[name] = client
	}
	return &Registry{defaultName: "default", clients: clients}, nil
}

// NewStaticRegistry wraps pre-built clients, mainly for tests.
func NewStaticRegistry(def Client, named map[string]Client) *Registry {
	clients := map[string]Client{"default": def}
	for name, client := range named {
		clients[name] = client
	}
	return &Registry{defaultName: "default", clients: clients}
}

// For returns the client for the named cluster, or the default client.
func (r *Registry) For(name string) Client {
	if r == nil {
		return nil
	}
	if client, ok := r.clients[name]; ok {
		return client
	}
	return r.clients[r.defaultName]
}

// Clusters returns the registered names.
func (r *Registry) Clusters() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every client.
func (r *Registry) Close() error {
	if r == nil {
		return nil
	}
	var err error
	for name, client := range r.clients {
		if client != nil {
			err = errors.Join(err, client.Close())
		}
		delete(r.clients, name)
	}
	return err
}
