// Package service contains the conversation logic for gp-data-v4.
//
// ConversationService coordinates the lead and message repositories:
// resolving leads from raw phone numbers, recording conversation turns,
// keeping each lead's working memory in step with the messages collection,
// erasing conversations and scanning for stale leads.
//
// Repository interfaces (LeadStore, MessageStore) are defined here, by the
// consumer. The mongodb repositories satisfy them.
//
// # Thread Safety
//
// ConversationService is safe for concurrent use. Two writers recording
// turns for the same lead race on the lead document; the last Save wins
// and Reconcile repairs message_count and recent_history afterwards.
package service
