package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Assessment-specific ───────────────────────────────────────────
	ErrAlreadyStarted            ErrCode = "ALREADY_STARTED"
	ErrSessionClosed             ErrCode = "SESSION_CLOSED"
	ErrSessionExpired            ErrCode = "SESSION_EXPIRED"
	ErrInvitationExpired         ErrCode = "INVITATION_EXPIRED"
	ErrInvalidQuestionDefinition ErrCode = "INVALID_QUESTION_DEFINITION"
	ErrInvalidTestDefinition     ErrCode = "INVALID_TEST_DEFINITION"

	// ─── Code execution ────────────────────────────────────────────────
	ErrExecutionTimeout     ErrCode = "EXECUTION_TIMEOUT"
	ErrExecutionUnavailable ErrCode = "EXECUTION_UNAVAILABLE"

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
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrCandidateAccessOnly:
		return "Sumber daya ini terbatas untuk peserta."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Assessment-specific ───────────────────────────────────────────
	case ErrAlreadyStarted:
		return "Asesmen ini sudah dimulai."
	case ErrSessionClosed:
		return "Sesi asesmen sudah ditutup."
	case ErrSessionExpired:
		return "Waktu asesmen telah habis. Jawaban Anda dikumpulkan otomatis."
	case ErrInvitationExpired:
		return "Undangan asesmen sudah tidak berlaku."
	case ErrInvalidQuestionDefinition:
		return "Definisi soal tidak valid."
	case ErrInvalidTestDefinition:
		return "Definisi tes tidak valid."

	// ─── Code execution ────────────────────────────────────────────────
	case ErrExecutionTimeout:
		return "Eksekusi kode melebihi batas waktu."
	case ErrExecutionUnavailable:
		return "Layanan eksekusi kode sedang tidak tersedia. Silakan coba lagi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
