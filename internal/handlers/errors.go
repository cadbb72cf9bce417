// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ndakohub/ndako-backend/internal/i18n"
	"github.com/ndakohub/ndako-backend/internal/services"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

// respondServiceError translates the service error taxonomy into HTTP
// responses. Anything unrecognized is a 500 with a generic message; the
// real cause stays in the logs.
func respondServiceError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	switch {
	case errors.Is(err, services.ErrContractNotFound):
		utils.NotFoundResponse(c, "contract")
	case errors.Is(err, services.ErrEntryNotFound):
		utils.NotFoundResponse(c, "escrow")
	case errors.Is(err, services.ErrDisputeNotFound):
		utils.NotFoundResponse(c, "dispute")
	case errors.Is(err, services.ErrChallengeNotFound):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyOtpInvalid), nil)
	case errors.Is(err, services.ErrInvalidCode):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyOtpInvalid), nil)
	case errors.Is(err, services.ErrCodeExpired):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyOtpExpired), nil)
	case errors.Is(err, services.ErrTooManyAttempts):
		utils.ErrorResponse(c, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS",
			i18n.T(lang, i18n.KeyOtpTooManyAttempts), nil)
	case errors.Is(err, services.ErrAlreadySigned):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeySignatureAlreadyDone))
	case errors.Is(err, services.ErrContractNotSignable):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyContractNotSignable))
	case errors.Is(err, services.ErrContractNotDraft),
		errors.Is(err, services.ErrNotCancellable),
		errors.Is(err, services.ErrNotTerminable),
		errors.Is(err, services.ErrContractInactive):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyContractNotEditable))
	case errors.Is(err, services.ErrDisputePending):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyEscrowFrozen))
	case errors.Is(err, services.ErrDuplicateOpenDispute):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyDisputeDuplicate))
	case errors.Is(err, services.ErrNotHeld),
		errors.Is(err, services.ErrNotRefundable),
		errors.Is(err, services.ErrRetractionOpen),
		errors.Is(err, services.ErrAlreadyFrozen),
		errors.Is(err, services.ErrNotFrozen):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyEscrowNotReleasable))
	case errors.Is(err, services.ErrNotAssigned),
		errors.Is(err, services.ErrAlreadyResolved):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyDisputeNotFound))
	case errors.Is(err, services.ErrStaleVersion):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyConflict))
	case errors.Is(err, services.ErrNotParty):
		utils.ForbiddenResponse(c, "")
	case errors.Is(err, services.ErrGatewayDeclined):
		utils.ErrorResponse(c, http.StatusPaymentRequired, "PAYMENT_DECLINED",
			i18n.T(lang, i18n.KeyPaymentDeclined), nil)
	case errors.Is(err, services.ErrGatewayTimeout):
		utils.ErrorResponse(c, http.StatusBadGateway, "PAYMENT_TIMEOUT",
			i18n.T(lang, i18n.KeyPaymentTimeout), nil)
	default:
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
	}
}
