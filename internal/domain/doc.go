// Package domain contains the core entities of the gp-data persistence layer.
//
// This package defines:
//   - Lead: a prospect keyed by E.164 phone number, with its working-memory
//     window (RecentHistory) and BANT signal log
//   - Message: one conversation turn, referencing a lead by LeadID
//   - Enums: SalesStage (ordered), MessageRole, BANTDimension
//
// # Design Philosophy
//
// Domain types are persistence-agnostic. The repository layer maps them to
// and from their stored documents; callers never see raw documents.
//
// # Working Memory
//
// Lead.RecentHistory duplicates the newest messages from the messages
// collection. It is a cache the caller refreshes, not derived state the
// repositories maintain.
package domain
