package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/checkout"
	"github.com/imrishuroy/go-esim-checkout/internal/idempotency"
	"github.com/imrishuroy/go-esim-checkout/internal/validation"
)

// CreateIntent handles POST /v1/payment-intents. An Idempotency-Key header
// makes client retries replay the first response instead of opening a
// second intent.
func (h *Handler) CreateIntent(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CreateIntentRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	idempKey := c.GetHeader("Idempotency-Key")
	useKey := idempKey != "" && h.idempotency != nil
	if useKey {
		hash, err := requestHash(req)
		if err != nil {
			writeError(c, err)
			return
		}
		created, err := h.idempotency.CreateIfNotExists(ctx, idempKey, hash)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "message": msgInternal})
			return
		}
		if !created {
			h.replay(c, idempKey, hash)
			return
		}
	}

	res, err := h.svc.CreateIntent(ctx, checkout.IntentInput{
		AmountMinor:    req.Amount,
		Currency:       req.Currency,
		Customer:       toCustomer(req.Customer),
		PackageID:      req.PackageID.String(),
		PackageName:    req.PackageName,
		IdempotencyKey: idempKey,
	})
	if err != nil {
		if useKey {
			// a FAILED key may be reused by the client
			if mErr := h.idempotency.MarkFailed(ctx, idempKey, err.Error()); mErr != nil {
				log.WithError(mErr).WithField("idempotency_key", idempKey).Warn("failed to mark idempotency key failed")
			}
		}
		writeError(c, err)
		return
	}

	if useKey {
		body, _ := json.Marshal(res)
		if err := h.idempotency.MarkDone(ctx, idempKey, res.PaymentID, string(body), http.StatusCreated); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"idempotency_key": idempKey,
				"payment_id":      res.PaymentID,
			}).Warn("failed to mark idempotency key done")
		}
	}

	c.Header("Location", fmt.Sprintf("/v1/purchases/%s", res.PaymentID))
	c.JSON(http.StatusCreated, res)
}

// replay answers a request whose idempotency key was already used.
func (h *Handler) replay(c *gin.Context, key, hash string) {
	rec, err := h.idempotency.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "message": msgInternal})
		return
	}
	if rec == nil {
		// expired between the conditional put and this read
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_conflict", "message": "Please retry the request."})
		return
	}
	if rec.RequestHash != "" && rec.RequestHash != hash {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "idempotency_key_reused",
			"message": "This Idempotency-Key was used with a different request.",
		})
		return
	}

	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"payment_id": rec.PaymentID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"error": "request_in_progress", "message": "request already in progress"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status", "message": msgInternal})
	}
}

// ConfirmPayment handles POST /v1/payments/confirm.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req validation.ConfirmRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	conf, err := h.svc.ConfirmPayment(c.Request.Context(), checkout.ConfirmInput{
		ClientSecret:    req.ClientSecret,
		Billing:         toCustomer(req.Billing),
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": conf.ID, "status": conf.Status})
}

// Provision handles POST /v1/purchases/:payment_id/provision.
func (h *Handler) Provision(c *gin.Context) {
	// the body is optional; the stored record carries package and customer
	var req validation.ProvisionRequest
	if c.Request.ContentLength != 0 {
		if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
			return
		}
	}

	in := checkout.ProvisionInput{
		PaymentID: c.Param("payment_id"),
		PackageID: req.PackageID.String(),
	}
	if req.Customer != nil {
		in.Customer = toCustomer(*req.Customer)
	}

	res, err := h.svc.Provision(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Checkout handles POST /v1/purchases/checkout: confirm, then provision.
func (h *Handler) Checkout(c *gin.Context) {
	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	in := checkout.CheckoutInput{
		Confirm: checkout.ConfirmInput{
			ClientSecret:    req.ClientSecret,
			Billing:         toCustomer(req.Billing),
			PaymentMethodID: req.PaymentMethodID,
		},
		PackageID: req.PackageID.String(),
	}
	if req.Customer != nil {
		in.Customer = toCustomer(*req.Customer)
	}

	res, err := h.svc.Checkout(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetPurchase handles GET /v1/purchases/:payment_id.
func (h *Handler) GetPurchase(c *gin.Context) {
	p, err := h.svc.GetPurchase(c.Request.Context(), c.Param("payment_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListPurchases handles GET /v1/purchases?email=.
func (h *Handler) ListPurchases(c *gin.Context) {
	list, err := h.svc.ListPurchases(c.Request.Context(), c.Query("email"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": list, "count": len(list)})
}

// Refund handles POST /v1/refunds.
func (h *Handler) Refund(c *gin.Context) {
	var req validation.RefundRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	res, err := h.svc.Refund(c.Request.Context(), checkout.RefundInput{
		PaymentID:   req.PaymentID,
		Reason:      req.Reason,
		AmountMinor: req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func toCustomer(c validation.Customer) checkout.Customer {
	return checkout.Customer{Email: c.Email, Name: c.Name, Phone: c.Phone}
}

// requestHash fingerprints the bound request so a reused key with a
// different body can be rejected.
func requestHash(req interface{}) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("hash request: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
