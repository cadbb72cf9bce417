// internal/handlers/dispute.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ndakohub/ndako-backend/internal/i18n"
	"github.com/ndakohub/ndako-backend/internal/services"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

type DisputeHandler struct {
	disputeService *services.DisputeService
}

func NewDisputeHandler(disputeService *services.DisputeService) *DisputeHandler {
	return &DisputeHandler{
		disputeService: disputeService,
	}
}

// POST /disputes
func (h *DisputeHandler) Open(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	dispute, err := h.disputeService.Open(userID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyDisputeOpened),
		"dispute": dispute,
	})
}

// GET /disputes/:id
func (h *DisputeHandler) Get(c *gin.Context) {
	disputeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	dispute, err := h.disputeService.Get(disputeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"dispute": dispute})
}

// POST /disputes/:id/assign
func (h *DisputeHandler) AssignMediator(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	disputeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		MediatorID uuid.UUID `json:"mediator_id" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "mediator_id"), nil)
		return
	}

	if err := h.disputeService.AssignMediator(disputeID, req.MediatorID); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": i18n.T(lang, i18n.KeyDisputeAssigned)})
}

// POST /disputes/:id/resolve
func (h *DisputeHandler) Resolve(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	disputeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	mediatorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	if err := h.disputeService.Resolve(c.Request.Context(), disputeID, mediatorID, &req); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": i18n.T(lang, i18n.KeyDisputeResolved)})
}

// POST /disputes/:id/withdraw
func (h *DisputeHandler) Withdraw(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	disputeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.disputeService.Withdraw(disputeID, userID); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": i18n.T(lang, i18n.KeyDisputeWithdrawn)})
}
