package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"codform/internal/config"
	"codform/internal/logger"
	"codform/internal/models"
	"codform/internal/services/shopify"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Webhook topics the service acts on.
const (
	TopicOrdersPaid      = "orders/paid"
	TopicOrdersCancelled = "orders/cancelled"
	TopicAppUninstalled  = "app/uninstalled"
)

type ShopifyHandler struct {
	db     *gorm.DB
	logger *logger.Logger
	config *config.Config
}

func NewShopifyHandler(db *gorm.DB, logger *logger.Logger, config *config.Config) *ShopifyHandler {
	return &ShopifyHandler{
		db:     db,
		logger: logger,
		config: config,
	}
}

// Webhook handles Shopify webhooks
func (h *ShopifyHandler) Webhook(c *gin.Context) {
	topic := c.GetHeader("X-Shopify-Topic")
	shopDomain := c.GetHeader("X-Shopify-Shop-Domain")
	signature := c.GetHeader("X-Shopify-Hmac-Sha256")

	if topic == "" || shopDomain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required headers"})
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}

	switch {
	case h.config.ShopifyAPISecret != "":
		if !VerifyWebhook(h.config.ShopifyAPISecret, payload, signature) {
			h.logger.Warn("Rejected webhook %s from %s: bad signature", topic, shopDomain)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
	case h.config.Env == "production":
		h.logger.Error("Rejected webhook %s: SHOPIFY_API_SECRET is not set", topic)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Webhook verification is not configured"})
		return
	}

	shop := shopify.NormalizeShopDomain(shopDomain)
	switch topic {
	case TopicOrdersPaid:
		err = h.handleOrderWebhook(payload, shop, "paid")
	case TopicOrdersCancelled:
		err = h.handleOrderWebhook(payload, shop, "cancelled")
	case TopicAppUninstalled:
		err = h.handleUninstall(shop)
	default:
		h.logger.Debug("Unhandled webhook topic: %s", topic)
		c.JSON(http.StatusOK, gin.H{"message": "Webhook received but not processed"})
		return
	}

	if err != nil {
		h.logger.Error("Failed to process webhook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Webhook processed successfully"})
}

// VerifyWebhook checks the base64 HMAC-SHA256 signature Shopify sends.
func VerifyWebhook(secret string, payload []byte, signature string) bool {
	want, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(want) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), want)
}

// handleOrderWebhook mirrors the platform status onto the captured order.
func (h *ShopifyHandler) handleOrderWebhook(payload []byte, shop, status string) error {
	var order shopify.WebhookOrder
	if err := json.Unmarshal(payload, &order); err != nil {
		return fmt.Errorf("failed to unmarshal webhook payload: %w", err)
	}
	if order.ID == 0 {
		return fmt.Errorf("webhook payload has no order id")
	}

	res := h.db.Model(&models.Order{}).
		Where("shop_domain = ? AND platform_order_id = ?", shop, order.ID).
		Update("platform_status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		h.logger.Debug("Webhook for unknown order %d of %s", order.ID, shop)
	}
	return nil
}

// handleUninstall drops the access token so no further orders are mirrored.
func (h *ShopifyHandler) handleUninstall(shop string) error {
	err := h.db.Model(&models.Shop{}).Where("domain = ?", shop).
		Updates(map[string]interface{}{"active": false, "access_token": ""}).Error
	if err != nil {
		return err
	}
	h.logger.Info("Shop %s uninstalled the app", shop)
	return nil
}
