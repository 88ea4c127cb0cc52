package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrNotAssigned        ErrCode = "NOT_ASSIGNED"
	ErrAlreadyCompleted   ErrCode = "ALREADY_COMPLETED"
	ErrUnanswered         ErrCode = "UNANSWERED"
	ErrInvalidOption      ErrCode = "INVALID_OPTION"
	ErrNotCurrentQuestion ErrCode = "NOT_CURRENT_QUESTION"
	ErrSessionNotActive   ErrCode = "SESSION_NOT_ACTIVE"
	ErrSessionBusy        ErrCode = "SESSION_BUSY"
	ErrInstrumentInactive ErrCode = "INSTRUMENT_INACTIVE"

	// ─── Instrument-specific ───────────────────────────────────────────
	ErrInvalidInstrument ErrCode = "INVALID_INSTRUMENT"
	ErrInstrumentInUse   ErrCode = "INSTRUMENT_IN_USE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You are not allowed to access this resource."
	case ErrPermissionDenied:
		return "Permission denied."
	case ErrStudentAccessOnly:
		return "This resource is limited to students."
	case ErrAdminAccessOnly:
		return "This resource is limited to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "The request contains invalid fields."
	case ErrInvalidID:
		return "The supplied ID is not valid."
	case ErrInvalidPayload:
		return "The request body could not be read."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The requested resource was not found."

	// ─── Attempt-specific ──────────────────────────────────────────────
	case ErrNotAssigned:
		return "This assessment has not been assigned to you."
	case ErrAlreadyCompleted:
		return "You have already completed this assessment."
	case ErrUnanswered:
		return "Please answer the current question before continuing."
	case ErrInvalidOption:
		return "The selected option does not exist for this question."
	case ErrNotCurrentQuestion:
		return "Only the current question can be answered."
	case ErrSessionNotActive:
		return "The assessment session is not in progress."
	case ErrSessionBusy:
		return "This assessment is already open in another window."
	case ErrInstrumentInactive:
		return "This assessment is not currently available."

	// ─── Instrument-specific ───────────────────────────────────────────
	case ErrInvalidInstrument:
		return "The assessment definition is invalid."
	case ErrInstrumentInUse:
		return "The assessment already has submissions and can no longer be edited."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please slow down."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."

	default:
		return "An unknown error occurred."
	}
}
