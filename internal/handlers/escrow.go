// internal/handlers/escrow.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ndakohub/ndako-backend/internal/i18n"
	"github.com/ndakohub/ndako-backend/internal/services"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

type EscrowHandler struct {
	escrowService *services.EscrowService
}

func NewEscrowHandler(escrowService *services.EscrowService) *EscrowHandler {
	return &EscrowHandler{
		escrowService: escrowService,
	}
}

// GET /contracts/:id/escrow
func (h *EscrowHandler) ListForContract(c *gin.Context) {
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	entries, err := h.escrowService.ListEntries(contractID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"entries": entries})
}

// GET /escrow/:id
func (h *EscrowHandler) Get(c *gin.Context) {
	entryID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	entry, err := h.escrowService.GetEntry(entryID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"entry": entry})
}

// POST /escrow/:id/authorize
func (h *EscrowHandler) Authorize(c *gin.Context) {
	entryID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.escrowService.Authorize(c.Request.Context(), entryID); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": i18n.T(utils.GetLangFromContext(c), i18n.KeySuccess)})
}

// POST /escrow/:id/capture
func (h *EscrowHandler) Capture(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	entryID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.escrowService.Capture(c.Request.Context(), entryID); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": i18n.T(lang, i18n.KeyEscrowCaptured)})
}

// POST /escrow/:id/confirm-receipt
func (h *EscrowHandler) ConfirmReceipt(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	entryID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.escrowService.ConfirmReceipt(c.Request.Context(), entryID, userID); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": i18n.T(lang, i18n.KeyEscrowReleased)})
}

// POST /escrow/:id/refund
func (h *EscrowHandler) Refund(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	entryID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "reason"), nil)
		return
	}

	if err := h.escrowService.Refund(c.Request.Context(), entryID, req.Reason); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": i18n.T(lang, i18n.KeyEscrowRefunded)})
}

// POST /escrow/webhook
//
// Provider callbacks are authoritative over the synchronous call results.
// The payload is normalized by the router middleware that checked the
// webhook signature.
func (h *EscrowHandler) Webhook(c *gin.Context) {
	var event struct {
		EntryRef string `json:"entry_ref" validate:"required"`
		Status   string `json:"status" validate:"required"`
	}
	if err := c.ShouldBindJSON(&event); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}

	if err := h.escrowService.ReconcileCallback(event.EntryRef, event.Status); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"received": true})
}
