package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mentorhive/mentorhive/internal/commission"
	earningsdomain "github.com/mentorhive/mentorhive/internal/earnings/domain"
	"github.com/mentorhive/mentorhive/internal/identity"
)

type earningsResponse struct {
	MentorID         string `json:"mentor_id"`
	TotalEarnings    int64  `json:"total_earnings"`
	SessionEarnings  int64  `json:"session_earnings"`
	MessageEarnings  int64  `json:"message_earnings"`
	SessionCount     int64  `json:"session_count"`
	ColdMessageCount int64  `json:"cold_message_count"`
	CommissionTier   string `json:"commission_tier"`
	PayoutAccountID  string `json:"payout_account_id,omitempty"`
}

type monthlyEarningsResponse struct {
	Month    string `json:"month"`
	Amount   int64  `json:"amount"`
	Sessions int64  `json:"sessions"`
}

func toEarningsResponse(e *earningsdomain.MentorEarnings) earningsResponse {
	return earningsResponse{
		MentorID:         e.MentorID.String(),
		TotalEarnings:    e.TotalEarnings,
		SessionEarnings:  e.SessionEarnings,
		MessageEarnings:  e.MessageEarnings,
		SessionCount:     e.SessionCount,
		ColdMessageCount: e.ColdMessageCount,
		CommissionTier:   e.CommissionTier,
		PayoutAccountID:  e.PayoutAccountID,
	}
}

func (s *Server) GetOwnEarnings(c *gin.Context) {
	actor, ok := identity.ActorFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	s.renderEarnings(c, actor.UserID)
}

func (s *Server) GetOwnMonthlyEarnings(c *gin.Context) {
	actor, ok := identity.ActorFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	s.renderMonthlyEarnings(c, actor.UserID)
}

func (s *Server) GetMentorEarnings(c *gin.Context) {
	mentorID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_mentor", "invalid mentor id"))
		return
	}
	s.renderEarnings(c, mentorID)
}

func (s *Server) GetMentorMonthlyEarnings(c *gin.Context) {
	mentorID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_mentor", "invalid mentor id"))
		return
	}
	s.renderMonthlyEarnings(c, mentorID)
}

func (s *Server) renderEarnings(c *gin.Context, mentorID snowflake.ID) {
	earnings, err := s.earningsSvc.GetByMentor(c.Request.Context(), mentorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toEarningsResponse(earnings)})
}

func (s *Server) renderMonthlyEarnings(c *gin.Context, mentorID snowflake.ID) {
	months := 12
	if raw := strings.TrimSpace(c.Query("months")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 36 {
			AbortWithError(c, newValidationError("months", "invalid_months", "months must be between 1 and 36"))
			return
		}
		months = parsed
	}

	report, err := s.earningsSvc.MonthlyReport(c.Request.Context(), mentorID, months)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]monthlyEarningsResponse, 0, len(report))
	for _, row := range report {
		resp = append(resp, monthlyEarningsResponse{
			Month:    row.Month.Format("2006-01"),
			Amount:   row.Amount,
			Sessions: row.Sessions,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetMentorTier(c *gin.Context) {
	mentorID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_mentor", "invalid mentor id"))
		return
	}

	var req struct {
		Tier string `json:"tier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tier, err := commission.Parse(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	actor, _ := identity.ActorFromContext(c.Request.Context())
	if err := s.earningsSvc.SetTier(c.Request.Context(), mentorID, tier, actor.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.renderEarnings(c, mentorID)
}

func (s *Server) SetPayoutAccount(c *gin.Context) {
	mentorID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_mentor", "invalid mentor id"))
		return
	}

	var req struct {
		PayoutAccountID string `json:"payout_account_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	accountID := strings.TrimSpace(req.PayoutAccountID)
	if accountID == "" {
		AbortWithError(c, newValidationError("payout_account_id", "required", "payout_account_id is required"))
		return
	}

	if err := s.earningsSvc.SetPayoutAccount(c.Request.Context(), mentorID, accountID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.renderEarnings(c, mentorID)
}
