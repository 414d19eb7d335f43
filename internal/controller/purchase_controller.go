package controller

import (
	"net/http"

	purchaseApp "github.com/cassiomorais/checkout/internal/application/purchase"
	"github.com/cassiomorais/checkout/internal/domain/cascade"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
	"github.com/cassiomorais/checkout/internal/fraud"
	"github.com/go-chi/chi/v5"
)

// PurchaseController handles the purchase orchestration endpoints.
type PurchaseController struct {
	initiate *purchaseApp.InitiateUseCase
	attempt  *purchaseApp.AttemptUseCase
	threeDS  *purchaseApp.AdvanceThreeDSUseCase
	abort    *purchaseApp.AbortUseCase
	get      *purchaseApp.GetUseCase
}

// NewPurchaseController creates a new PurchaseController.
func NewPurchaseController(
	initiate *purchaseApp.InitiateUseCase,
	attempt *purchaseApp.AttemptUseCase,
	threeDS *purchaseApp.AdvanceThreeDSUseCase,
	abort *purchaseApp.AbortUseCase,
	get *purchaseApp.GetUseCase,
) *PurchaseController {
	return &PurchaseController{
		initiate: initiate,
		attempt:  attempt,
		threeDS:  threeDS,
		abort:    abort,
		get:      get,
	}
}

// Create handles POST /api/v1/purchases
func (h *PurchaseController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.initiate.Execute(r.Context(), purchase.Context{
		SessionID:       req.SessionID,
		SiteID:          req.SiteID,
		BusinessGroupID: req.BusinessGroupID,
		Country:         req.Country,
		PaymentType:     cascade.PaymentType(req.PaymentType),
		PaymentMethod:   req.PaymentMethod,
		TrafficSource:   req.TrafficSource,
		CardBIN:         req.CardBIN,
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		MemberID:        req.MemberID,
		PostbackURL:     req.PostbackURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromProcess(p))
}

// Attempt handles POST /api/v1/purchases/{sessionID}/attempt
func (h *PurchaseController) Attempt(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req AttemptRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.attempt.Execute(r.Context(), sessionID, fraud.Signals{
		IPAddress:     req.IPAddress,
		Email:         req.Email,
		DeviceID:      req.DeviceID,
		VelocityCount: req.VelocityCount,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromProcess(p))
}

// ThreeDS handles POST /api/v1/purchases/{sessionID}/3ds/{step}
func (h *PurchaseController) ThreeDS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	step := purchaseApp.ThreeDSStep(chi.URLParam(r, "step"))

	var req ThreeDSRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.threeDS.Execute(r.Context(), sessionID, step, purchaseApp.ThreeDSInput{
		MD:    req.MD,
		PARes: req.PARes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromProcess(p))
}

// Abort handles POST /api/v1/purchases/{sessionID}/abort
func (h *PurchaseController) Abort(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req AbortRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "aborted by consumer"
	}

	p, err := h.abort.Execute(r.Context(), sessionID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromProcess(p))
}

// Get handles GET /api/v1/purchases/{sessionID}
func (h *PurchaseController) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	p, err := h.get.Execute(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromProcess(p))
}
