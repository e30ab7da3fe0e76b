// Package validator provides struct validation for leads and messages.
//
// This package wraps go-playground/validator to provide:
//   - Domain enum checks (sales_stage, message_role, bant_dimension)
//   - Human-readable error messages keyed by serialized field path
//   - Conversion to Validation application errors
//
// # Usage
//
// Repositories validate entities before writing them:
//
//	if err := validator.ValidateEntity("lead", lead); err != nil {
//	    // apperrors.IsValidation(err) == true
//	}
//
// The validator instance is package-level and thread-safe.
package validator
