package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
)

func toBookingResponse(b *bookingdomain.Booking) bookingdomain.BookingResponse {
	resp := bookingdomain.BookingResponse{
		ID:                b.ID.String(),
		Status:            string(b.Status),
		PaymentStatus:     string(b.PaymentStatus),
		PayoutStatus:      string(b.PayoutStatus),
		Amount:            b.Amount,
		Currency:          b.Currency,
		ScheduledAt:       b.ScheduledAt,
		DisputePeriodEnds: b.DisputePeriodEnds,
	}
	return resp
}

func (s *Server) Checkout(c *gin.Context) {
	var req bookingdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	booking, err := s.bookingSvc.Checkout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toBookingResponse(booking)})
}

func (s *Server) GetBooking(c *gin.Context) {
	booking, err := s.bookingSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toBookingResponse(booking)})
}

// ConfirmPayment is the charge-confirmation callback for externally paid
// bookings. Replays of the same confirmation are accepted silently.
func (s *Server) ConfirmPayment(c *gin.Context) {
	var req struct {
		ChargeRef string `json:"charge_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ChargeRef) == "" {
		AbortWithError(c, newValidationError("charge_ref", "required", "charge_ref is required"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := s.bookingSvc.MarkPaid(c.Request.Context(), id, strings.TrimSpace(req.ChargeRef)); err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toBookingResponse(booking)})
}

func (s *Server) CompleteBooking(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.bookingSvc.Complete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toBookingResponse(booking)})
}

func (s *Server) MarkReviewable(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.bookingSvc.MarkReviewable(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) MarkReviewed(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.bookingSvc.MarkReviewed(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) CancelBooking(c *gin.Context) {
	var req bookingdomain.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.BookingID = strings.TrimSpace(c.Param("id"))

	booking, err := s.bookingSvc.Cancel(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := toBookingResponse(booking)
	if refund, err := s.refundSvc.GetByBookingID(c.Request.Context(), booking.ID); err == nil && refund != nil {
		resp.RefundAmount = &refund.Amount
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRefund(c *gin.Context) {
	booking, err := s.bookingSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	refund, err := s.refundSvc.GetByBookingID(c.Request.Context(), booking.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"booking_id": refund.BookingID.String(),
		"amount":     refund.Amount,
		"type":       refund.Type,
		"status":     refund.Status,
		"reason":     refund.Reason,
	}})
}

// PurchaseColdMessage records a paid introduction and settles it right away.
// A failed settlement leaves the message for the payout sweep.
func (s *Server) PurchaseColdMessage(c *gin.Context) {
	var req bookingdomain.ColdMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	message, err := s.bookingSvc.PurchaseColdMessage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payoutStatus := message.PayoutStatus
	if outcome, err := s.settlementSvc.SettleColdMessage(c.Request.Context(), message.ID); err == nil && !outcome.AlreadyPaid {
		payoutStatus = bookingdomain.PayoutStatusPaid
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"id":            message.ID.String(),
		"mentor_id":     message.MentorID.String(),
		"amount":        message.Amount,
		"currency":      message.Currency,
		"payout_status": payoutStatus,
	}})
}
