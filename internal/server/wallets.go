package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mentorhive/mentorhive/internal/identity"
	walletdomain "github.com/mentorhive/mentorhive/internal/wallet/domain"
)

// GetWallet returns the caller's token balance. Wallets are created lazily on
// first credit, so an absent wallet reads as zero.
func (s *Server) GetWallet(c *gin.Context) {
	actor, ok := identity.ActorFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	wallet, err := s.walletSvc.Balance(c.Request.Context(), actor.UserID)
	if err != nil {
		if errors.Is(err, walletdomain.ErrWalletNotFound) {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{
				"user_id":  actor.UserID.String(),
				"balance":  int64(0),
				"currency": "",
			}})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_id":  wallet.UserID.String(),
		"balance":  wallet.Balance,
		"currency": wallet.Currency,
	}})
}
