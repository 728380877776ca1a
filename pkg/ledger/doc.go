// Package ledger is the durable usage and budget store.
//
// State lives in a single SQLite file (default ./tokencap.db) opened in WAL
// mode. Two tables carry everything: usage, an append-only record per
// charged request, and budgets, one mutable row per project.
//
// The central operation is RecordUsage, the "charge": it appends a usage row
// and increments the project's spent_usd in one transaction. SQLite's
// serializable transactions make concurrent charges for the same project
// apply in order without losing or double-counting any of them.
//
// All budget state lives here. Admission logic in pkg/budget reads through
// this store; nothing keeps an authoritative in-memory copy.
package ledger
