package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/service"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

type PaymentHandler struct {
	orchestrator *service.Orchestrator
}

func NewPaymentHandler(orchestrator *service.Orchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

type createPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	MerchantID  string          `json:"merchant_id" binding:"required"`
	Description string          `json:"description"`
}

type verifyPINRequest struct {
	PIN string `json:"pin" binding:"required"`
}

type cancelPaymentRequest struct {
	Reason string `json:"reason"`
}

// CreatePayment creates a request and immediately starts the proof exchange.
// A verifier outage still yields 201 with a warning.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var body createPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		telemetry.Logger.Error("Error decoding create payment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	req, err := h.orchestrator.CreatePaymentRequest(ctx, body.Amount, body.MerchantID, body.Description)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	exchange, err := h.orchestrator.BeginProofExchange(ctx, req.ID)
	if err != nil {
		respondError(c, err, gin.H{"payment_request": req})
		return
	}
	c.JSON(http.StatusCreated, exchange)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	req, err := h.orchestrator.GetPaymentRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *PaymentHandler) BeginProofExchange(c *gin.Context) {
	exchange, err := h.orchestrator.BeginProofExchange(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, exchangeBody(exchange))
		return
	}
	c.JSON(http.StatusOK, exchange)
}

func exchangeBody(exchange *service.ProofExchange) gin.H {
	if exchange == nil {
		return nil
	}
	return gin.H{"payment_request": exchange.Request}
}

// Advance polls the verifier and moves the request forward when possible.
func (h *PaymentHandler) Advance(c *gin.Context) {
	req, err := h.orchestrator.PollAndAdvance(c.Request.Context(), c.Param("id"))
	if err != nil {
		out := gin.H{}
		if req != nil {
			out["payment_request"] = req
		}
		respondError(c, err, out)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *PaymentHandler) VerifyPIN(c *gin.Context) {
	var body verifyPINRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pin is required"})
		return
	}

	meta := models.RequestMeta{ClientIP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	result, err := h.orchestrator.VerifyPIN(c.Request.Context(), c.Param("id"), body.PIN, meta)
	if err != nil {
		out := gin.H{}
		if result != nil {
			out["payment_request"] = result.Request
			if result.Attempt != nil {
				out["attempt"] = result.Attempt
			}
			if result.Assessment != nil {
				out["assessment"] = result.Assessment
			}
		}
		respondError(c, err, out)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	var body cancelPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "cancelled by merchant"
	}

	req, err := h.orchestrator.CancelPaymentRequest(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		out := gin.H{}
		if req != nil {
			out["payment_request"] = req
		}
		respondError(c, err, out)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ListPayments serves the reporting view. Dates are RFC3339.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	filter := service.ListFilter{
		MerchantID: c.Query("merchant_id"),
		AccountID:  c.Query("account_id"),
	}

	if v := c.Query("successful"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "successful must be a boolean"})
			return
		}
		filter.SuccessfulOnly = ok
	}
	var err error
	if filter.From, err = parseTime(c.Query("from")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be an RFC3339 timestamp"})
		return
	}
	if filter.To, err = parseTime(c.Query("to")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be an RFC3339 timestamp"})
		return
	}

	report, err := h.orchestrator.ListAttempts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
