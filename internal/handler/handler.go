// Package handler содержит HTTP-обработчики API сервиса доставки посылок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/zapshift-system/internal/model"
	"github.com/mmeshcher/zapshift-system/internal/payment"
	"github.com/mmeshcher/zapshift-system/internal/repository"
	"github.com/mmeshcher/zapshift-system/internal/service"
	"github.com/mmeshcher/zapshift-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateParcel(ctx context.Context, p *model.Parcel) (*model.Parcel, error)
	GetParcel(ctx context.Context, id string) (*model.Parcel, error)
	ListParcels(ctx context.Context, senderEmail string) ([]model.Parcel, error)
	DeleteParcel(ctx context.Context, id string) (int64, error)
	CreateCheckoutSession(ctx context.Context, req service.CheckoutRequest) (string, error)
	ConfirmPayment(ctx context.Context, sessionID string) (*model.ConfirmResult, error)
	ListPayments(ctx context.Context, customerEmail string) ([]model.PaymentRecord, error)
}

// Handler реализует HTTP-обработчики API сервиса доставки посылок.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

// Live отвечает текстом о готовности сервиса.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Zap Shift server running"))
}

type createParcelRequest struct {
	Name        string `json:"name" validate:"required"`
	SenderEmail string `json:"senderEmail" validate:"required,email"`
	Cost        int64  `json:"cost" validate:"required,gt=0"`
}

type parcelResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SenderEmail   string `json:"senderEmail"`
	Cost          int64  `json:"cost"`
	PaymentStatus string `json:"paymentStatus"`
	TrackingID    string `json:"trackingId,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

func toParcelResponse(p *model.Parcel) parcelResponse {
	return parcelResponse{
		ID:            p.ID,
		Name:          p.Name,
		SenderEmail:   p.SenderEmail,
		Cost:          p.CostCents,
		PaymentStatus: string(p.PaymentStatus),
		TrackingID:    p.TrackingID,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}

// CreateParcel регистрирует новую посылку.
func (h *Handler) CreateParcel(w http.ResponseWriter, r *http.Request) {
	var req createParcelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := validation.ValidateStruct(req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	parcel, err := h.service.CreateParcel(r.Context(), &model.Parcel{
		Name:        req.Name,
		SenderEmail: req.SenderEmail,
		CostCents:   req.Cost,
	})
	if err != nil {
		h.logger.Error("create parcel error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toParcelResponse(parcel)); err != nil {
		h.logger.Error("encode parcel error", zap.Error(err))
	}
}

// ListParcels возвращает посылки, при непустом query-параметре email —
// только с точным совпадением отправителя.
func (h *Handler) ListParcels(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	parcels, err := h.service.ListParcels(r.Context(), email)
	if err != nil {
		h.logger.Error("list parcels error", zap.Error(err), zap.String("email", email))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]parcelResponse, 0, len(parcels))
	for i := range parcels {
		resp = append(resp, toParcelResponse(&parcels[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetParcel возвращает посылку по идентификатору.
func (h *Handler) GetParcel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	parcel, err := h.service.GetParcel(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrParcelNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get parcel error", zap.Error(err), zap.String("id", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toParcelResponse(parcel)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type deleteParcelResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}

// DeleteParcel удаляет посылку по идентификатору. Ноль удалённых записей
// для неизвестного идентификатора не считается ошибкой.
func (h *Handler) DeleteParcel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	count, err := h.service.DeleteParcel(r.Context(), id)
	if err != nil {
		h.logger.Error("delete parcel error", zap.Error(err), zap.String("id", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(deleteParcelResponse{DeletedCount: count}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type checkoutSessionRequest struct {
	ParcelID    string `json:"parcelId" validate:"required"`
	ParcelName  string `json:"parcelName" validate:"required"`
	SenderEmail string `json:"senderEmail" validate:"required,email"`
	Cost        int64  `json:"cost" validate:"required,gt=0"`
}

type checkoutSessionResponse struct {
	URL string `json:"url"`
}

// CreateCheckoutSession создаёт чекаут-сессию провайдера для оплаты посылки.
// Стоимость принимается в минимальных единицах валюты.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := validation.ValidateStruct(req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	url, err := h.service.CreateCheckoutSession(r.Context(), service.CheckoutRequest{
		ParcelID:    req.ParcelID,
		ParcelName:  req.ParcelName,
		SenderEmail: req.SenderEmail,
		CostCents:   req.Cost,
	})
	if err != nil {
		h.logger.Error("create checkout session error", zap.Error(err), zap.String("parcelId", req.ParcelID))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(checkoutSessionResponse{URL: url}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type confirmPaymentResponse struct {
	Status         string `json:"status"`
	TransactionID  string `json:"transactionId"`
	TrackingID     string `json:"trackingId,omitempty"`
	ParcelsUpdated int64  `json:"parcelsUpdated"`
}

// ConfirmPayment сверяет оплаченную чекаут-сессию с внутренним состоянием.
// Повторное подтверждение одной и той же транзакции отвечает already_recorded
// и ничего не изменяет.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.ConfirmPayment(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrSessionNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrNotPaid):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		case errors.Is(err, service.ErrInvalidSession):
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		default:
			h.logger.Error("confirm payment error", zap.Error(err), zap.String("sessionId", sessionID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	resp := confirmPaymentResponse{
		Status:         "recorded",
		TransactionID:  res.TransactionID,
		TrackingID:     res.TrackingID,
		ParcelsUpdated: res.ParcelsUpdated,
	}
	if res.AlreadyRecorded {
		resp.Status = "already_recorded"
	} else if res.ParcelsUpdated == 0 {
		// Оплата записана, но посылка из метаданных сессии не нашлась.
		h.logger.Warn("payment recorded without parcel update",
			zap.String("sessionId", sessionID),
			zap.String("transactionId", res.TransactionID),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type paymentResponse struct {
	TransactionID string  `json:"transactionId"`
	ParcelID      string  `json:"parcelId"`
	ParcelName    string  `json:"parcelName"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	CustomerEmail string  `json:"customerEmail"`
	PaymentStatus string  `json:"paymentStatus"`
	PaidAt        string  `json:"paidAt"`
}

// ListPayments возвращает записи об оплатах, при непустом query-параметре
// email — только с точным совпадением плательщика. Сумма отдаётся
// в основных единицах валюты.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	payments, err := h.service.ListPayments(r.Context(), email)
	if err != nil {
		h.logger.Error("list payments error", zap.Error(err), zap.String("email", email))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, paymentResponse{
			TransactionID: p.TransactionID,
			ParcelID:      p.ParcelID,
			ParcelName:    p.ParcelName,
			Amount:        float64(p.AmountCents) / 100,
			Currency:      p.Currency,
			CustomerEmail: p.CustomerEmail,
			PaymentStatus: p.PaymentStatus,
			PaidAt:        p.PaidAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
