package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mentorhive/mentorhive/internal/scheduler"
	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
)

type payoutOutcomeResponse struct {
	BookingID   string `json:"booking_id"`
	Commission  int64  `json:"commission"`
	Payout      int64  `json:"payout"`
	Tier        string `json:"tier"`
	TransferRef string `json:"transfer_ref,omitempty"`
	AlreadyPaid bool   `json:"already_paid"`
}

func toPayoutOutcomeResponse(o *settlementdomain.Outcome) payoutOutcomeResponse {
	return payoutOutcomeResponse{
		BookingID:   o.BookingID.String(),
		Commission:  o.Commission,
		Payout:      o.Payout,
		Tier:        o.Tier,
		TransferRef: o.TransferRef,
		AlreadyPaid: o.AlreadyPaid,
	}
}

func (s *Server) ListFailedPayouts(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be between 1 and 200"))
			return
		}
		limit = parsed
	}

	bookings, err := s.settlementSvc.FailedPayouts(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	type failedPayout struct {
		BookingID     string `json:"booking_id"`
		MentorID      string `json:"mentor_id"`
		Amount        int64  `json:"amount"`
		Currency      string `json:"currency"`
		FailureReason string `json:"failure_reason"`
	}
	resp := make([]failedPayout, 0, len(bookings))
	for i := range bookings {
		b := &bookings[i]
		resp = append(resp, failedPayout{
			BookingID:     b.ID.String(),
			MentorID:      b.MentorID.String(),
			Amount:        b.Amount,
			Currency:      b.Currency,
			FailureReason: b.PayoutFailureReason,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ForceSettleBooking lets an operator retry a failed payout or, with force,
// settle before the dispute window closes.
func (s *Server) ForceSettleBooking(c *gin.Context) {
	bookingID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_booking_id", "invalid booking id"))
		return
	}

	var req struct {
		Force bool `json:"force"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	outcome, err := s.settlementSvc.SettleBooking(c.Request.Context(), bookingID, settlementdomain.SettleOptions{Force: req.Force})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toPayoutOutcomeResponse(outcome)})
}

func (s *Server) ForceSettleColdMessage(c *gin.Context) {
	messageID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_cold_message_id", "invalid cold message id"))
		return
	}

	outcome, err := s.settlementSvc.SettleColdMessage(c.Request.Context(), messageID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toPayoutOutcomeResponse(outcome)})
}

// RunSchedulerJob triggers one background job by name, outside its schedule.
func (s *Server) RunSchedulerJob(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if err := s.scheduler.RunJob(c.Request.Context(), name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			AbortWithError(c, newValidationError("name", "unknown_job", "unknown job name"))
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "job": name})
}
