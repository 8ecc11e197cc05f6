package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type addRequestQuery struct {
	Amount        float64 `form:"amount" binding:"required,gt=0"`
	PaymentStatus *bool   `form:"paymentStatus" binding:"required"`
}

func (h *httpHandler) handleListOwnRequests(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	result, err := h.requestsService.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.writeServiceError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleAddRequest(c *gin.Context) {
	var query addRequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	created, err := h.requestsService.Submit(c.Request.Context(), claimsFrom(c), query.Amount, *query.PaymentStatus)
	if err != nil {
		h.writeServiceError(c, "submit_failed", err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (h *httpHandler) handleListPendingRequests(c *gin.Context) {
	result, err := h.requestsService.ListPending(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleApproveRequest(c *gin.Context) {
	requestID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || requestID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request_id"})
		return
	}
	approved, err := h.requestsService.Approve(c.Request.Context(), requestID)
	if err != nil {
		h.writeServiceError(c, "approve_failed", err)
		return
	}
	c.JSON(http.StatusOK, approved)
}
