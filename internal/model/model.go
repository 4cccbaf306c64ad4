// Package model содержит доменные сущности сервиса доставки посылок.
package model

import "time"

// ParcelStatus описывает статус оплаты посылки.
type ParcelStatus string

const (
	ParcelStatusUnpaid ParcelStatus = "unpaid"
	ParcelStatusPaid   ParcelStatus = "paid"
)

// Parcel описывает посылку, зарегистрированную отправителем.
// Стоимость хранится в минимальных единицах валюты (центах).
type Parcel struct {
	ID            string
	Name          string
	SenderEmail   string
	CostCents     int64
	PaymentStatus ParcelStatus
	TrackingID    string
	CreatedAt     time.Time
}

// PaymentRecord описывает факт успешной оплаты посылки.
// Создаётся ровно один раз на каждый идентификатор транзакции провайдера.
type PaymentRecord struct {
	ID            string
	TransactionID string
	ParcelID      string
	ParcelName    string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	PaymentStatus string
	PaidAt        time.Time
}

// ConfirmResult содержит итог подтверждения оплаты чекаут-сессии.
type ConfirmResult struct {
	AlreadyRecorded bool
	ParcelsUpdated  int64
	TrackingID      string
	TransactionID   string
}
