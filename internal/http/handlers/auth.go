package handlers

import (
	"errors"
	"net/http"

	"ctm_arena/internal/repository"
	"ctm_arena/internal/service"

	"github.com/gin-gonic/gin"
)

// Auth exchanges an address ownership proof for a JWT. Unknown addresses
// are registered with the starting balance on first login.
func (h *Handler) Auth(c *gin.Context) {
	var req service.AddressProof
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	addr, err := service.ValidateAddressProof(req, h.AuthProofTTL)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, service.ErrProofMalformed) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	account, err := h.AccountRepo.GetByAddress(ctx, addr)
	if err != nil {
		if !errors.Is(err, repository.ErrAccountNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "account lookup failed"})
			return
		}
		account, err = h.AccountRepo.Create(ctx, addr)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
			return
		}
	}

	token, err := service.GenerateJWT(addr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"account": gin.H{
			"address": account.Address,
			"points":  account.Points,
		},
	})
}
