package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/checkout"
	"github.com/imrishuroy/go-esim-checkout/internal/idempotency"
	"github.com/imrishuroy/go-esim-checkout/internal/processor"
	"github.com/imrishuroy/go-esim-checkout/internal/purchases"
	"github.com/imrishuroy/go-esim-checkout/internal/validation"
)

// CheckoutService is the purchase workflow exposed over HTTP.
type CheckoutService interface {
	CreateIntent(ctx context.Context, in checkout.IntentInput) (*checkout.IntentResult, error)
	ConfirmPayment(ctx context.Context, in checkout.ConfirmInput) (*processor.Confirmation, error)
	Provision(ctx context.Context, in checkout.ProvisionInput) (*checkout.ProvisionResult, error)
	Checkout(ctx context.Context, in checkout.CheckoutInput) (*checkout.ProvisionResult, error)
	GetPurchase(ctx context.Context, paymentID string) (*purchases.Purchase, error)
	ListPurchases(ctx context.Context, email string) ([]purchases.Purchase, error)
	Refund(ctx context.Context, in checkout.RefundInput) (*checkout.RefundResult, error)
}

// IdempotencyStore guards intent creation against client retries.
type IdempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key, requestHash string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, paymentID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Catalog lists what the reseller sells.
type Catalog interface {
	Countries(ctx context.Context) (json.RawMessage, error)
	PackagesByCountry(ctx context.Context, countryID string) (json.RawMessage, error)
}

// HandlerConfig groups dependencies for the API routes. Idempotency and
// Catalog are optional.
type HandlerConfig struct {
	Service     CheckoutService
	Idempotency IdempotencyStore
	Catalog     Catalog
}

// Handler serves the checkout API.
type Handler struct {
	svc         CheckoutService
	idempotency IdempotencyStore
	catalog     Catalog
	validate    *validatorv10.Validate
}

// RegisterRoutes registers the /v1 checkout and catalog routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &Handler{
		svc:         cfg.Service,
		idempotency: cfg.Idempotency,
		catalog:     cfg.Catalog,
		validate:    validation.New(),
	}

	v1 := r.Group("/v1")
	v1.POST("/payment-intents", h.CreateIntent)
	v1.POST("/payments/confirm", h.ConfirmPayment)
	v1.POST("/purchases/checkout", h.Checkout)
	v1.POST("/purchases/:payment_id/provision", h.Provision)
	v1.GET("/purchases/:payment_id", h.GetPurchase)
	v1.GET("/purchases", h.ListPurchases)
	v1.POST("/refunds", h.Refund)

	if cfg.Catalog != nil {
		v1.GET("/catalog/countries", h.Countries)
		v1.GET("/catalog/countries/:id/packages", h.PackagesByCountry)
	}
}

// RequestLogger tags each request with X-Request-Id and logs its outcome.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
			c.Request.Header.Set("X-Request-Id", reqID)
		}
		c.Header("X-Request-Id", reqID)

		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Info("request served")
	}
}

const (
	msgSupport          = "Please contact support if you have any questions."
	msgRefundInitiated  = "We couldn't activate your eSIM. A refund has been initiated to your original payment method."
	msgRefundManual     = "We couldn't complete your refund automatically. It will be processed manually, please contact support."
	msgProcessorFailure = "We couldn't reach the payment provider. Please try again."
	msgInternal         = "Something went wrong. Please try again."
)

// writeError maps workflow errors to HTTP responses. Every body carries a
// machine-readable "error" code and a user-facing "message".
func writeError(c *gin.Context, err error) {
	var (
		verr    *checkout.ValidationError
		pfail   *checkout.ProvisioningFailedError
		rerr    *checkout.RefundError
		payFail *checkout.PaymentFailedError
		pending *checkout.PaymentPendingError
		procErr *checkout.ProcessorError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"fields":  verr.Fields,
			"message": validation.FieldsMessage,
		})
	case errors.As(err, &pfail):
		body := gin.H{
			"error":            "provisioning_failed",
			"payment_id":       pfail.PaymentID,
			"refund_initiated": pfail.RefundInitiated,
			"message":          msgRefundInitiated + " " + msgSupport,
		}
		if !pfail.RefundInitiated {
			body["message"] = "We couldn't activate your eSIM. " + msgRefundManual
		}
		if pfail.Refund != nil {
			body["refund_id"] = pfail.Refund.RefundID
		}
		c.JSON(http.StatusBadGateway, body)
	case errors.As(err, &rerr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "refund_failed",
			"payment_id": rerr.PaymentID,
			"message":    msgRefundManual,
		})
	case errors.As(err, &payFail):
		msg := payFail.Message
		if msg == "" {
			msg = "Your payment was declined."
		}
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":        "payment_failed",
			"code":         payFail.Code,
			"decline_code": payFail.DeclineCode,
			"message":      msg,
		})
	case errors.As(err, &pending):
		c.JSON(http.StatusAccepted, gin.H{
			"error":      "payment_pending",
			"payment_id": pending.PaymentID,
			"status":     pending.Status,
			"message":    "Your payment is still processing. We'll finish your order once it completes.",
		})
	case errors.As(err, &procErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "processor_error", "message": msgProcessorFailure})
	case errors.Is(err, checkout.ErrPurchaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "purchase_not_found", "message": "Purchase not found."})
	case errors.Is(err, checkout.ErrPurchaseRefunded):
		c.JSON(http.StatusConflict, gin.H{"error": "purchase_refunded", "message": "This purchase has been refunded."})
	case errors.Is(err, checkout.ErrProvisioningInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "provisioning_in_progress", "message": "Your eSIM is being activated. Please wait."})
	case errors.Is(err, checkout.ErrRefundInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "refund_in_progress", "message": "A refund is already in progress for this purchase."})
	case errors.Is(err, checkout.ErrIntentNotRecorded):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "intent_not_recorded", "message": msgInternal})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": msgInternal})
	}
}
