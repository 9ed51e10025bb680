package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"codform/internal/logger"
	"codform/internal/models"
	"codform/internal/services/fraud"
	"codform/internal/services/shopify"
)

type BlocklistHandler struct {
	fraud  *fraud.Checker
	logger *logger.Logger
}

func NewBlocklistHandler(checker *fraud.Checker, logger *logger.Logger) *BlocklistHandler {
	return &BlocklistHandler{
		fraud:  checker,
		logger: logger,
	}
}

func shopQuery(c *gin.Context) (string, bool) {
	shop := c.Query("shop")
	if shop == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shop is required"})
		return "", false
	}
	return shopify.NormalizeShopDomain(shop), true
}

// List returns the block list of a shop
func (h *BlocklistHandler) List(c *gin.Context) {
	shop, ok := shopQuery(c)
	if !ok {
		return
	}

	entries, err := h.fraud.List(c.Request.Context(), shop)
	if err != nil {
		h.logger.Error("Failed to fetch block list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch block list"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// Create adds a phone, email or IP to a shop's block list
func (h *BlocklistHandler) Create(c *gin.Context) {
	var req struct {
		Shop   string `json:"shop" binding:"required"`
		Kind   string `json:"kind" binding:"required"`
		Value  string `json:"value" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry := &models.BlockedCustomer{
		ShopDomain: shopify.NormalizeShopDomain(req.Shop),
		Kind:       models.BlockKind(strings.ToUpper(req.Kind)),
		Value:      req.Value,
		Reason:     req.Reason,
	}
	if err := h.fraud.Add(c.Request.Context(), entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

// Delete removes a block list entry
func (h *BlocklistHandler) Delete(c *gin.Context) {
	shop, ok := shopQuery(c)
	if !ok {
		return
	}

	removed, err := h.fraud.Remove(c.Request.Context(), shop, c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to delete block entry: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete block entry"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Block entry not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Block entry deleted successfully"})
}
