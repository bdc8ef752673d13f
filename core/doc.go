// Package core defines the case data model and the correlation engine for triage.
//
// # Architecture Overview
//
// The core package provides:
//   - Value types (Location, Certificate, DNSQuery, HTTPTransaction, Service, Vulnerability)
//   - Context entities (flow, process, file, registry, log, device, person, threat intel)
//   - Detection, a single normalized alert with its derived indicators
//   - CaseFile, the aggregate that owns per-kind timelines, merged indicators and the audit trail
//   - AuditLog, the pending/resolved record of one playbook stage
//
// # Collaborators
//
// The engine never reaches for global state. Whitelists and audit persistence are injected
// through two small interfaces defined here, where they are consumed:
//
//   - WhitelistStore: per-category allow-lists (ip, domain, hash, url, email)
//   - AuditSink: write-through mirror of audit entries keyed by case UUID
//
// Implementations live in the storage package (Redis, SQLite, ClickHouse, files) and in soar
// (fan-out, rate limiting, no-op).
//
// # References
//
// Contexts reference each other by UUID string, never by pointer (a process's parent, a flow's
// detection). References are resolved lazily through CaseFile.ContextByUUID or Lookup.
//
// # Errors
//
// Construction and attachment failures wrap ErrValidation, ErrType or ErrFatal. Lookup misses
// are reported as (zero, false) and are never errors.
package core
