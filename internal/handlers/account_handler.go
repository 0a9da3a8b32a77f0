package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/service"
)

type AccountHandler struct {
	orchestrator *service.Orchestrator
	retention    time.Duration
}

func NewAccountHandler(orchestrator *service.Orchestrator, retention time.Duration) *AccountHandler {
	return &AccountHandler{orchestrator: orchestrator, retention: retention}
}

type suspendRequest struct {
	Until time.Time `json:"until" binding:"required"`
}

func (h *AccountHandler) GetRisk(c *gin.Context) {
	assessment, err := h.orchestrator.AssessAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (h *AccountHandler) Suspend(c *gin.Context) {
	var body suspendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "until is required"})
		return
	}

	acct, err := h.orchestrator.SuspendCredential(c.Request.Context(), c.Param("id"), body.Until)
	if err != nil {
		accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id": acct.ID,
		"status":     "suspended",
		"until":      body.Until,
	})
}

// Cleanup runs one expiry and retention pass on demand.
func (h *AccountHandler) Cleanup(c *gin.Context) {
	result, err := h.orchestrator.Cleanup(c.Request.Context(), h.retention)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, result)
}

// accountError reports an unknown account ID as 404. On payment routes the
// same error means the credential claims matched nobody and maps to 401.
func accountError(c *gin.Context, err error) {
	if errors.Is(err, models.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	respondError(c, err, nil)
}
