package glue

import (
	"context"
	"fmt"
)

// Registry resolves connection ids into clients.
type Registry struct {
	connections map[string]Connection
	defaultID   string
	region      string
	build       Builder
	retry       RetryConfig
}

func NewRegistry(build Builder) *Registry {
	return &Registry{connections: map[string]Connection{}, build: build}
}

// NewRegistryFromConfig registers every configured connection.
func NewRegistryFromConfig(cfg Config, build Builder) *Registry {
	r := NewRegistry(build)
	for name, conn := range cfg.Connections {
		r.Register(name, conn)
	}
	r.defaultID = cfg.DefaultConnection
	r.region = cfg.Region
	r.retry = RetryConfigFrom(cfg)
	return r
}

func (r *Registry) Register(id string, conn Connection) {
	r.connections[id] = conn
}

func (r *Registry) SetDefault(id string) { r.defaultID = id }

func (r *Registry) SetRetry(cfg RetryConfig) { r.retry = cfg }

// Get returns the connection for id. An empty id selects the default
// connection, or a zero Connection (SDK default chain) when none is set.
func (r *Registry) Get(id string) (Connection, error) {
	if id == "" {
		id = r.defaultID
	}
	if id == "" {
		return Connection{Region: r.region}, nil
	}
	conn, ok := r.connections[id]
	if !ok {
		return Connection{}, fmt.Errorf("connection not registered: %s", id)
	}
	if conn.Region == "" {
		conn.Region = r.region
	}
	return conn, nil
}

// Factory returns a ClientFactory that resolves connID when a run starts.
// A non-empty region overrides the connection's region.
func (r *Registry) Factory(connID, region string) ClientFactory {
	return func(ctx context.Context) (Client, error) {
		conn, err := r.Get(connID)
		if err != nil {
			return nil, err
		}
		if region != "" {
			conn.Region = region
		}
		c, err := r.build(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("build glue client: %w", err)
		}
		if r.retry.MaxRetries > 0 {
			c = NewRetryingClient(c, r.retry)
		}
		return c, nil
	}
}
