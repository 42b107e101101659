/*
Package jungledb is an embedded, transactional key/value storage engine with
secondary indices, layered optimistic transactions, and atomic multi-store
commits.

It presents an IndexedDB-shaped API over pluggable persistent backends (see
pkg/boltbackend for a memory-mapped B+-tree adapter built on bbolt) and an
in-memory backend usable either as a volatile store or as the uncommitted-
change buffer that every Transaction carries.

# Architecture

	┌────────────────────────── JungleDB ───────────────────────────┐
	│                                                                  │
	│  ObjectStore("nodes")        ObjectStore("services")            │
	│  ┌──────────────────┐        ┌──────────────────┐               │
	│  │ committed stack    │        │ committed stack    │             │
	│  │  tx3 (newest)      │        │  tx7               │             │
	│  │  tx2               │        │                    │             │
	│  │  tx1 (next flush)  │        │                    │             │
	│  └─────────┬──────────┘        └─────────┬──────────┘             │
	│            │ open transactions            │                      │
	│       tx4, tx5 (parent=tx3)          tx8 (parent=store)           │
	│            │                               │                      │
	│            ▼                               ▼                      │
	│     PersistentBackend                PersistentBackend            │
	│     (bbolt, or InMemoryBackend)      (bbolt, or InMemoryBackend)  │
	└──────────────────────────────────────────────────────────────────┘
	            ▲                                ▲
	            └──────────── CombinedTransaction ┘
	                 (cross-store atomic commit)

Reads walk a chain Transaction → parent Transaction* → backend. Writes stay
in the leaf transaction's buffer until commit. A committed transaction is
pushed onto its store's committed stack. Each ObjectStore.Flush call writes
the oldest transaction on the stack into the backend and drops it from the
stack; nothing is flushed automatically. Indices are maintained both in each transaction's TransactionIndex
and, on flush, in the backend's persistent indices.
*/
package jungledb
