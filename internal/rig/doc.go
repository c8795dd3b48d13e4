// Package rig manages the bench's instrument fleet: persistent
// instrument records, the driver catalog, and the runtime registry of
// live instruments.
//
// # Architecture
//
//	┌──────────────┐   records    ┌──────────────┐
//	│  Repository  │─────────────▶│   Registry   │
//	│   (SQLite)   │              │  (runtime)   │
//	└──────────────┘              └──────┬───────┘
//	                                     │ Start(name)
//	┌──────────────┐   builders          ▼
//	│   Catalog    │─────────────▶ OpenTransport ──▶ Instrument + Adapter
//	│ (by driver)  │                                      (live entry)
//	└──────────────┘
//
// # Key Types
//
//   - InstrumentRecord: persisted description of one instrument (name,
//     driver, transport, params).
//   - Repository: record persistence, SQLite-backed.
//   - Catalog: maps driver names to builders that assemble an
//     instrument's command tree and dialect.
//   - Registry: starts and stops live instruments and fans completion
//     events from every adapter into one observer.
//
// # Usage
//
//	catalog := rig.NewCatalog()
//	catalog.Register("virtual.furnace", buildFurnace)
//
//	registry := rig.NewRegistry(repo, catalog)
//	if err := registry.StartAll(ctx); err != nil {
//		...
//	}
//	defer registry.Close()
//
//	entry, ok := registry.Get("furnace-1")
//
// # Thread Safety
//
// Repository implementations are safe for concurrent use (database/sql
// pools connections). Catalog and Registry methods are safe for
// concurrent use.
package rig
