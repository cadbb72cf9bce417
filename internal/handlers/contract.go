// internal/handlers/contract.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ndakohub/ndako-backend/internal/i18n"
	"github.com/ndakohub/ndako-backend/internal/models"
	"github.com/ndakohub/ndako-backend/internal/services"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

type ContractHandler struct {
	contractService  *services.ContractService
	signatureService *services.SignatureService
}

func NewContractHandler(contractService *services.ContractService, signatureService *services.SignatureService) *ContractHandler {
	return &ContractHandler{
		contractService:  contractService,
		signatureService: signatureService,
	}
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// POST /contracts
func (h *ContractHandler) Generate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.GenerateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	contract, err := h.contractService.Generate(&req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyContractCreated),
		"contract": contract,
	})
}

// GET /contracts
func (h *ContractHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	contracts, total, err := h.contractService.ListForUser(userID, params)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(contracts, total, params))
}

// GET /contracts/:id
func (h *ContractHandler) Get(c *gin.Context) {
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	view, err := h.contractService.Get(contractID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"contract": view})
}

// POST /contracts/:id/send
func (h *ContractHandler) SendForSignature(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	contract, err := h.contractService.SendForSignature(contractID, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyContractSent),
		"contract": contract,
	})
}

// POST /contracts/:id/cancel
func (h *ContractHandler) Cancel(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.contractService.Cancel(contractID, userID, req.Reason); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyContractCancelled),
	})
}

// POST /contracts/:id/withdraw
func (h *ContractHandler) Withdraw(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.contractService.WithdrawDuringRetraction(c.Request.Context(), contractID, userID, req.Reason); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyContractCancelled),
	})
}

// POST /contracts/:id/terminate
func (h *ContractHandler) Terminate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
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

	if err := h.contractService.Terminate(contractID, userID, req.Reason); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyContractTerminated),
	})
}

// POST /contracts/:id/rent/schedule
func (h *ContractHandler) ScheduleNextRent(c *gin.Context) {
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	entry, err := h.contractService.ScheduleNextRent(contractID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"entry": entry})
}

// POST /contracts/:id/signatures/request
func (h *ContractHandler) RequestSignature(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Role models.SignerRole `json:"role" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "role"), nil)
		return
	}

	challenge, err := h.signatureService.RequestSignature(contractID, req.Role, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// The code itself is delivered out of band.
	utils.SuccessResponse(c, gin.H{
		"message":      i18n.T(lang, i18n.KeySignatureCodeSent),
		"challenge_id": challenge.ChallengeID,
		"expires_at":   challenge.ExpiresAt,
	})
}

// POST /contracts/:id/signatures/confirm
func (h *ContractHandler) ConfirmSignature(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Role        models.SignerRole `json:"role" validate:"required"`
		ChallengeID uuid.UUID         `json:"challenge_id" validate:"required"`
		Code        string            `json:"code" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	contract, err := h.signatureService.ConfirmSignature(c.Request.Context(), contractID, req.Role, userID, req.ChallengeID, req.Code)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeySignatureRecorded),
		"contract": contract,
	})
}

// GET /contracts/:id/signatures
func (h *ContractHandler) ListSignatures(c *gin.Context) {
	contractID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	signatures, err := h.signatureService.ListSignatures(contractID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"signatures": signatures})
}
