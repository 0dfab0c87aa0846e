package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	disputedomain "github.com/mentorhive/mentorhive/internal/dispute/domain"
)

type disputeResponse struct {
	ID                  string          `json:"id"`
	BookingID           string          `json:"booking_id"`
	Status              string          `json:"status"`
	Reason              string          `json:"reason"`
	Details             string          `json:"details,omitempty"`
	Evidence            json.RawMessage `json:"evidence,omitempty"`
	MentorResponse      string          `json:"mentor_response,omitempty"`
	MentorEvidence      json.RawMessage `json:"mentor_evidence,omitempty"`
	Decision            string          `json:"decision,omitempty"`
	PartialRefundAmount *int64          `json:"partial_refund_amount,omitempty"`
	ResolutionNotes     string          `json:"resolution_notes,omitempty"`
}

func toDisputeResponse(d *disputedomain.Dispute) disputeResponse {
	return disputeResponse{
		ID:                  d.ID.String(),
		BookingID:           d.BookingID.String(),
		Status:              string(d.Status),
		Reason:              d.Reason,
		Details:             d.Details,
		Evidence:            json.RawMessage(d.Evidence),
		MentorEvidence:      json.RawMessage(d.MentorEvidence),
		MentorResponse:      d.MentorResponse,
		Decision:            string(d.Decision),
		PartialRefundAmount: d.PartialRefundAmount,
		ResolutionNotes:     d.ResolutionNotes,
	}
}

func (s *Server) FileDispute(c *gin.Context) {
	var req disputedomain.FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.BookingID = strings.TrimSpace(c.Param("id"))

	dispute, err := s.disputeSvc.File(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toDisputeResponse(dispute)})
}

func (s *Server) GetDispute(c *gin.Context) {
	dispute, err := s.disputeSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toDisputeResponse(dispute)})
}

func (s *Server) RespondToDispute(c *gin.Context) {
	var req disputedomain.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.DisputeID = strings.TrimSpace(c.Param("id"))

	dispute, err := s.disputeSvc.MentorRespond(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toDisputeResponse(dispute)})
}

func (s *Server) ListOpenDisputes(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be between 1 and 200"))
			return
		}
		limit = parsed
	}

	disputes, err := s.disputeSvc.ListOpen(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]disputeResponse, 0, len(disputes))
	for i := range disputes {
		resp = append(resp, toDisputeResponse(&disputes[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EscalateDispute(c *gin.Context) {
	dispute, err := s.disputeSvc.Escalate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toDisputeResponse(dispute)})
}

func (s *Server) ResolveDispute(c *gin.Context) {
	var req disputedomain.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.DisputeID = strings.TrimSpace(c.Param("id"))

	dispute, err := s.disputeSvc.Resolve(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toDisputeResponse(dispute)})
}

func (s *Server) DismissDispute(c *gin.Context) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dispute, err := s.disputeSvc.Dismiss(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Notes)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toDisputeResponse(dispute)})
}
