// Package errors provides structured error handling for the provenance engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Entity errors
	CodeEntityEmptyID                 Code = "ENTITY_EMPTY_ID"
	CodeEntityNameEmpty               Code = "ENTITY_NAME_EMPTY"
	CodeEntityInvalidKind             Code = "ENTITY_INVALID_KIND"
	CodeEntityInvalidStatusTransition Code = "ENTITY_INVALID_STATUS_TRANSITION"
	CodeEntityArchived                Code = "ENTITY_ARCHIVED"

	// Assertion errors
	CodeAssertionEmptyEntityID   Code = "ASSERTION_EMPTY_ENTITY_ID"
	CodeAssertionEmptyAttribute  Code = "ASSERTION_EMPTY_ATTRIBUTE"
	CodeAssertionEmptySourceID   Code = "ASSERTION_EMPTY_SOURCE_ID"
	CodeAssertionInvalidValue    Code = "ASSERTION_INVALID_VALUE"
	CodeAssertionConfidenceRange Code = "ASSERTION_CONFIDENCE_OUT_OF_RANGE"
	CodeAssertionLineageOrder    Code = "ASSERTION_LINEAGE_TIME_ORDER"

	// Source errors
	CodeSourceEmptyName           Code = "SOURCE_EMPTY_NAME"
	CodeSourceInvalidKind         Code = "SOURCE_INVALID_KIND"
	CodeSourceInvalidVerification Code = "SOURCE_INVALID_VERIFICATION"
	CodeSourceMetadataTooLarge    Code = "SOURCE_METADATA_TOO_LARGE"

	// Review errors
	CodeReviewEmptyEntityID   Code = "REVIEW_EMPTY_ENTITY_ID"
	CodeReviewEmptyReviewerID Code = "REVIEW_EMPTY_REVIEWER_ID"
	CodeReviewInvalidPriority Code = "REVIEW_INVALID_PRIORITY"
	CodeReviewAlreadyComplete Code = "REVIEW_ALREADY_COMPLETE"

	// Scoring errors
	CodeScoringInputInsufficient Code = "SCORING_INPUT_INSUFFICIENT"

	// Workflow errors
	CodePropagationPartialFailure Code = "PROPAGATION_PARTIAL_FAILURE"

	// Storage errors
	CodeNotFound            Code = "NOT_FOUND"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeStorageUnavailable  Code = "STORAGE_UNAVAILABLE"

	// Filter/query errors
	CodeFilterInvalid Code = "FILTER_INVALID"
	CodeCursorInvalid Code = "CURSOR_INVALID"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeNotFound:
		return codes.NotFound
	case CodeConcurrencyConflict:
		return codes.Aborted
	case CodeStorageUnavailable:
		return codes.Unavailable
	case CodePropagationPartialFailure:
		return codes.DataLoss
	case CodeScoringInputInsufficient,
		CodeEntityInvalidStatusTransition,
		CodeEntityArchived,
		CodeReviewAlreadyComplete:
		return codes.FailedPrecondition
	case CodeUnknown:
		return codes.Unknown
	default:
		return codes.InvalidArgument
	}
}
