// Package app composes the cooperative loan back office.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, service wiring, job registration
//	├── domain/             # Data models: cooperative, program, checklist,
//	│                       # coopprogram, amortization, notification, user, synclog
//	├── storage/            # Store interfaces and sentinel errors
//	│   ├── memory/         # In-memory stores for tests and the default wiring
//	│   └── postgres/       # PostgreSQL stores; every mutation appends a sync log row
//	├── services/           # Business rules and batch jobs
//	├── scheduler/          # Cron jobs guarded by advisory locks
//	├── lock/               # Redis and in-process locks
//	├── files/              # Checklist upload blobs on local disk
//	├── httpapi/            # REST handlers, audit log, HTTP server service
//	├── metrics/            # Prometheus collectors
//	├── runtime/            # Builds a node from configuration
//	└── system/             # Service lifecycle manager
//
// # Dependency Direction
//
//	cmd/backoffice
//	      │
//	      ▼
//	internal/app/runtime ──► internal/platform (database, migrations)
//	      │
//	      ▼
//	internal/app ──► services ──► storage ──► domain
//	      │
//	      └──► scheduler ──► lock
//
// Domain packages import nothing from the rest of the module. Services depend
// on store interfaces only, so every service test runs against the memory
// stores.
//
// # Adding a Domain
//
//  1. Add models under domain/<name>/
//  2. Declare the store interface in storage/interfaces.go
//  3. Implement it in storage/memory and storage/postgres, plus a migration
//  4. Write the service under services/<name>/ and wire it in New
//  5. Add handlers in httpapi/handler_<name>.go and register routes
//  6. Add the table to sync.tables if it should replicate
package app
