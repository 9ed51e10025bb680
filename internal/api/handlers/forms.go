package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"codform/internal/logger"
	"codform/internal/models"
	"codform/internal/services/shopify"
	"codform/internal/storefront/formconfig"
)

type FormHandler struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewFormHandler(db *gorm.DB, logger *logger.Logger) *FormHandler {
	return &FormHandler{
		db:     db,
		logger: logger,
	}
}

type formRequest struct {
	Config                  json.RawMessage     `json:"config" binding:"required"`
	Shipping                json.RawMessage     `json:"shipping"`
	RedirectType            models.RedirectType `json:"redirect_type"`
	RedirectURL             string              `json:"redirect_url"`
	ThankYouMessage         string              `json:"thank_you_message"`
	WhatsAppNumber          string              `json:"whatsapp_number"`
	WhatsAppTemplate        string              `json:"whatsapp_template"`
	MaxOrdersPerPhonePerDay int                 `json:"max_orders_per_phone_per_day"`
	BlockedMessage          string              `json:"blocked_message"`
	CreatePlatformOrder     *bool               `json:"create_platform_order"`
}

// Get returns the stored form of a shop
func (h *FormHandler) Get(c *gin.Context) {
	shop := shopify.NormalizeShopDomain(c.Param("shop"))

	var form models.Form
	if err := h.db.Where("shop_domain = ?", shop).First(&form).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Form not found"})
			return
		}
		h.logger.Error("Failed to fetch form: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch form"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": form})
}

// Put publishes a shop's form. The document is validated with the same
// decoder the storefront runtime uses.
func (h *FormHandler) Put(c *gin.Context) {
	shop := shopify.NormalizeShopDomain(c.Param("shop"))

	var req formRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Shipping) == 0 || string(req.Shipping) == "null" {
		req.Shipping = json.RawMessage("[]")
	}

	doc, err := json.Marshal(map[string]json.RawMessage{"form": req.Config, "shipping": req.Shipping})
	if err == nil {
		_, err = formconfig.Parse(doc)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form config: " + err.Error()})
		return
	}

	switch req.RedirectType {
	case "":
		req.RedirectType = models.RedirectMessage
	case models.RedirectMessage, models.RedirectDefault:
	case models.RedirectCustom:
		if strings.TrimSpace(req.RedirectURL) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "redirect_url is required for custom redirects"})
			return
		}
	case models.RedirectWhatsApp:
		if strings.TrimSpace(req.WhatsAppNumber) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "whatsapp_number is required for whatsapp redirects"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown redirect_type " + string(req.RedirectType)})
		return
	}
	if req.MaxOrdersPerPhonePerDay < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_orders_per_phone_per_day must not be negative"})
		return
	}

	form := models.Form{
		ShopDomain:              shop,
		Config:                  string(req.Config),
		Shipping:                string(req.Shipping),
		RedirectType:            req.RedirectType,
		RedirectURL:             req.RedirectURL,
		ThankYouMessage:         req.ThankYouMessage,
		WhatsAppNumber:          req.WhatsAppNumber,
		WhatsAppTemplate:        req.WhatsAppTemplate,
		MaxOrdersPerPhonePerDay: req.MaxOrdersPerPhonePerDay,
		BlockedMessage:          req.BlockedMessage,
		CreatePlatformOrder:     req.CreatePlatformOrder == nil || *req.CreatePlatformOrder,
	}

	err = h.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop_domain"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"config", "shipping", "redirect_type", "redirect_url", "thank_you_message",
			"whatsapp_number", "whatsapp_template", "max_orders_per_phone_per_day",
			"blocked_message", "create_platform_order", "updated_at",
		}),
	}).Create(&form).Error
	if err != nil {
		h.logger.Error("Failed to save form for %s: %v", shop, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save form"})
		return
	}

	// form.ID holds the hook's fresh UUID even when the row already
	// existed, so the stored row is read by shop only.
	var stored models.Form
	if err := h.db.Where("shop_domain = ?", shop).First(&stored).Error; err != nil {
		h.logger.Error("Failed to reload form for %s: %v", shop, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save form"})
		return
	}

	h.logger.Info("Published form for %s", shop)
	c.JSON(http.StatusOK, gin.H{"data": stored})
}

// PutShop registers a shop and its admin API access token.
func (h *FormHandler) PutShop(c *gin.Context) {
	domain := shopify.NormalizeShopDomain(c.Param("shop"))

	var req struct {
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
		Currency    string `json:"currency"`
		Active      *bool  `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var shop models.Shop
	err := h.db.Where("domain = ?", domain).First(&shop).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		h.logger.Error("Failed to fetch shop: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save shop"})
		return
	}

	shop.Domain = domain
	if req.Name != "" {
		shop.Name = req.Name
	}
	if req.AccessToken != "" {
		shop.AccessToken = req.AccessToken
	}
	if req.Currency != "" {
		shop.Currency = strings.ToUpper(req.Currency)
	}
	if shop.Currency == "" {
		shop.Currency = "USD"
	}
	shop.Active = req.Active == nil || *req.Active

	if err := h.db.Save(&shop).Error; err != nil {
		h.logger.Error("Failed to save shop %s: %v", domain, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save shop"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": shop, "admin_access": shop.HasAdminAccess()})
}
