// Package service реализует бизнес-логику сервиса доставки посылок.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/zapshift-system/internal/model"
	"github.com/mmeshcher/zapshift-system/internal/payment"
	"github.com/mmeshcher/zapshift-system/internal/repository"
)

// ErrNotPaid возвращается при попытке подтвердить неоплаченную сессию.
var (
	ErrNotPaid = errors.New("checkout session is not paid")
	// ErrInvalidSession возвращается, если сессия провайдера не содержит
	// идентификатора транзакции.
	ErrInvalidSession = errors.New("checkout session has no transaction id")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateParcel(ctx context.Context, p *model.Parcel) error
	GetParcelByID(ctx context.Context, id string) (*model.Parcel, error)
	ListParcels(ctx context.Context, senderEmail string) ([]model.Parcel, error)
	DeleteParcel(ctx context.Context, id string) (int64, error)
	ConfirmPayment(ctx context.Context, p *model.PaymentRecord, trackingID string) (int64, error)
	ListPayments(ctx context.Context, customerEmail string) ([]model.PaymentRecord, error)
}

// Provider описывает контракт платёжного провайдера, используемый сервисом.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params payment.CheckoutParams) (*payment.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*payment.CheckoutSession, error)
}

// CheckoutRequest содержит данные посылки для создания чекаут-сессии.
// Стоимость задаётся в минимальных единицах валюты.
type CheckoutRequest struct {
	ParcelID    string
	ParcelName  string
	SenderEmail string
	CostCents   int64
}

// Service содержит бизнес-логику сервиса доставки посылок.
type Service struct {
	repo       Repository
	provider   Provider
	siteDomain string
}

// NewService создаёт новый сервис с указанным репозиторием и платёжным провайдером.
func NewService(repo Repository, provider Provider, siteDomain string) *Service {
	return &Service{
		repo:       repo,
		provider:   provider,
		siteDomain: strings.TrimRight(siteDomain, "/"),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateParcel регистрирует новую посылку с серверным идентификатором.
func (s *Service) CreateParcel(ctx context.Context, p *model.Parcel) (*model.Parcel, error) {
	p.ID = uuid.NewString()
	p.PaymentStatus = model.ParcelStatusUnpaid
	p.TrackingID = ""

	if err := s.repo.CreateParcel(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetParcel возвращает посылку по идентификатору.
func (s *Service) GetParcel(ctx context.Context, id string) (*model.Parcel, error) {
	return s.repo.GetParcelByID(ctx, id)
}

// ListParcels возвращает посылки, при непустом senderEmail — только указанного отправителя.
func (s *Service) ListParcels(ctx context.Context, senderEmail string) ([]model.Parcel, error) {
	return s.repo.ListParcels(ctx, senderEmail)
}

// DeleteParcel удаляет посылку и возвращает число удалённых записей.
func (s *Service) DeleteParcel(ctx context.Context, id string) (int64, error) {
	return s.repo.DeleteParcel(ctx, id)
}

// ListPayments возвращает записи об оплатах, при непустом customerEmail — только указанного плательщика.
func (s *Service) ListPayments(ctx context.Context, customerEmail string) ([]model.PaymentRecord, error) {
	return s.repo.ListPayments(ctx, customerEmail)
}

// CreateCheckoutSession создаёт чекаут-сессию провайдера для оплаты посылки
// и возвращает URL для перенаправления плательщика.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	session, err := s.provider.CreateCheckoutSession(ctx, payment.CheckoutParams{
		AmountCents:   req.CostCents,
		Currency:      "usd",
		ProductName:   req.ParcelName,
		CustomerEmail: req.SenderEmail,
		SuccessURL:    fmt.Sprintf("%s/payment-success?session_id={CHECKOUT_SESSION_ID}", s.siteDomain),
		CancelURL:     fmt.Sprintf("%s/payment-cancel", s.siteDomain),
		Metadata: map[string]string{
			"parcelId":   req.ParcelID,
			"parcelName": req.ParcelName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}

	return session.URL, nil
}

// ConfirmPayment сверяет чекаут-сессию провайдера с внутренним состоянием.
// Для оплаченной сессии оплата записывается ровно один раз на идентификатор
// транзакции, посылке присваивается трек-номер и статус paid. Повторное
// подтверждение возвращает результат AlreadyRecorded без изменений.
func (s *Service) ConfirmPayment(ctx context.Context, sessionID string) (*model.ConfirmResult, error) {
	session, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}

	if session.PaymentIntent == "" {
		return nil, ErrInvalidSession
	}

	if session.PaymentStatus != "paid" {
		return nil, ErrNotPaid
	}

	record := &model.PaymentRecord{
		ID:            uuid.NewString(),
		TransactionID: session.PaymentIntent,
		ParcelID:      session.Metadata["parcelId"],
		ParcelName:    session.Metadata["parcelName"],
		AmountCents:   session.AmountTotal,
		Currency:      session.Currency,
		CustomerEmail: session.CustomerEmail,
		PaymentStatus: session.PaymentStatus,
		PaidAt:        time.Now().UTC(),
	}

	trackingID := generateTrackingID()

	parcelsUpdated, err := s.repo.ConfirmPayment(ctx, record, trackingID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			return &model.ConfirmResult{
				AlreadyRecorded: true,
				TransactionID:   session.PaymentIntent,
			}, nil
		}
		return nil, err
	}

	return &model.ConfirmResult{
		ParcelsUpdated: parcelsUpdated,
		TrackingID:     trackingID,
		TransactionID:  session.PaymentIntent,
	}, nil
}

// generateTrackingID формирует трек-номер вида TRK-XXXXXXXXXXXX
// из шести случайных байт в шестнадцатеричной записи.
func generateTrackingID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return "TRK-" + strings.ToUpper(hex.EncodeToString(b))
}
