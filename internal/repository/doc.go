// Package repository contains data access implementations for gp-data-v4.
//
// Repositories provide persistence operations for leads and their
// conversation messages, abstracting the underlying MongoDB collections.
//
// # Architecture
//
// Repository interfaces are defined at the service layer (consumer-defined
// interfaces). The mongodb subpackage holds the concrete implementations:
// a generic CRUD engine (Repository) composed by LeadRepository and
// MessageRepository.
//
// # Data Stores
//
//   - leads: one document per E.164 phone number, including a bounded
//     recent_history copy of the newest messages
//   - messages: the authoritative conversation log
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use.
// The connection pool is owned by database.MongoManager.
package repository
