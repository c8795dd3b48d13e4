package rig

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/transport"
	"github.com/benchrig/benchrig-core/internal/virtual"
)

// Builder assembles an instrument around an open transport. The record
// carries the instrument name and driver-specific params; the builder
// owns neither and must not close the transport.
type Builder func(rec *InstrumentRecord, tr driver.Transport) (*driver.Instrument, error)

// Catalog maps driver names to builders. Driver packages register
// themselves here at daemon startup, and the registry looks builders
// up when it starts an instrument from its record.
type Catalog struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewCatalog creates an empty driver catalog.
func NewCatalog() *Catalog {
	return &Catalog{builders: make(map[string]Builder)}
}

// Register adds a builder under the given driver name.
// Returns ErrDriverExists if the name is already taken.
func (c *Catalog) Register(name string, b Builder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.builders[name]; exists {
		return fmt.Errorf("%w: %s", ErrDriverExists, name)
	}
	c.builders[name] = b
	return nil
}

// Builder returns the builder registered under the given driver name.
// Returns ErrDriverUnknown if no builder is registered.
func (c *Catalog) Builder(name string) (Builder, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDriverUnknown, name)
	}
	return b, nil
}

// Drivers returns the registered driver names in sorted order.
func (c *Catalog) Drivers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.builders))
	for name := range c.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenTransport opens the transport a record describes. Serial specs
// open a local port, socket specs dial a terminal server, and virtual
// specs run a simulated furnace in-process.
func OpenTransport(ctx context.Context, spec TransportSpec) (driver.Transport, error) {
	switch spec.Kind {
	case TransportSerial:
		return transport.OpenSerial(transport.SerialConfig{
			Device:   spec.Device,
			Baud:     spec.Baud,
			Parity:   spec.Parity,
			StopBits: spec.StopBits,
		})
	case TransportSocket:
		return transport.DialSocket(ctx, transport.SocketConfig{
			Address: spec.Address,
		})
	case TransportVirtual:
		return virtual.NewFurnace(), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTransport, spec.Kind)
	}
}
