package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/catalog-migrator/internal/api/dto"
	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

// PutDestination handles PUT /api/v1/destination
func (h *DestinationHandler) PutDestination(c *gin.Context) {
	var req dto.PutDestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	dst := &domain.Destination{
		UserID:         userID(c),
		StoreURL:       strings.TrimRight(strings.TrimSpace(req.StoreURL), "/"),
		ConsumerKey:    strings.TrimSpace(req.ConsumerKey),
		ConsumerSecret: strings.TrimSpace(req.ConsumerSecret),
	}
	if err := h.store.SaveDestination(c.Request.Context(), dst); err != nil {
		respondError(c, h.logger, "Failed to save destination", err)
		return
	}

	saved, err := h.store.GetDestination(c.Request.Context(), dst.UserID)
	if err != nil {
		respondError(c, h.logger, "Failed to load destination", err)
		return
	}

	h.logger.Info("Destination saved",
		slog.String("user_id", dst.UserID),
		slog.String("store_url", dst.StoreURL),
	)
	c.JSON(http.StatusOK, destinationResponse(saved))
}

// GetDestination handles GET /api/v1/destination
func (h *DestinationHandler) GetDestination(c *gin.Context) {
	dst, err := h.store.GetDestination(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to load destination", err)
		return
	}
	c.JSON(http.StatusOK, destinationResponse(dst))
}

func destinationResponse(dst *domain.Destination) dto.DestinationResponse {
	return dto.DestinationResponse{
		StoreURL:       dst.StoreURL,
		ConsumerKey:    dst.ConsumerKey,
		ConsumerSecret: maskSecret(dst.ConsumerSecret),
		UpdatedAt:      dst.UpdatedAt,
	}
}

// maskSecret keeps the last four characters of secrets long enough to hide the rest
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
