package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mmeshcher/zapshift-system/internal/model"
	"github.com/mmeshcher/zapshift-system/internal/payment"
	"github.com/mmeshcher/zapshift-system/internal/repository"
	"github.com/mmeshcher/zapshift-system/internal/validation"
)

type stubRepo struct {
	createParcelErr error

	parcel    *model.Parcel
	parcelErr error

	parcels    []model.Parcel
	parcelsErr error

	deleteCount int64
	deleteErr   error

	confirmCalls    int
	confirmUpdated  int64
	confirmErr      error
	confirmPayment  *model.PaymentRecord
	confirmTracking string

	payments    []model.PaymentRecord
	paymentsErr error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateParcel(ctx context.Context, p *model.Parcel) error {
	return s.createParcelErr
}

func (s *stubRepo) GetParcelByID(ctx context.Context, id string) (*model.Parcel, error) {
	return s.parcel, s.parcelErr
}

func (s *stubRepo) ListParcels(ctx context.Context, senderEmail string) ([]model.Parcel, error) {
	return s.parcels, s.parcelsErr
}

func (s *stubRepo) DeleteParcel(ctx context.Context, id string) (int64, error) {
	return s.deleteCount, s.deleteErr
}

func (s *stubRepo) ConfirmPayment(ctx context.Context, p *model.PaymentRecord, trackingID string) (int64, error) {
	s.confirmCalls++
	s.confirmPayment = p
	s.confirmTracking = trackingID
	return s.confirmUpdated, s.confirmErr
}

func (s *stubRepo) ListPayments(ctx context.Context, customerEmail string) ([]model.PaymentRecord, error) {
	return s.payments, s.paymentsErr
}

type stubProvider struct {
	session    *payment.CheckoutSession
	sessionErr error

	created      *payment.CheckoutSession
	createErr    error
	createParams payment.CheckoutParams
}

func (s *stubProvider) CreateCheckoutSession(ctx context.Context, params payment.CheckoutParams) (*payment.CheckoutSession, error) {
	s.createParams = params
	return s.created, s.createErr
}

func (s *stubProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
	return s.session, s.sessionErr
}

func paidSession() *payment.CheckoutSession {
	return &payment.CheckoutSession{
		ID:            "cs_test_1",
		PaymentStatus: "paid",
		PaymentIntent: "pi_1",
		AmountTotal:   500,
		Currency:      "usd",
		CustomerEmail: "a@x.com",
		Metadata:      map[string]string{"parcelId": "parcel-1", "parcelName": "Documents"},
	}
}

func TestGenerateTrackingIDFormat(t *testing.T) {
	a := generateTrackingID()
	b := generateTrackingID()

	if !validation.IsValidTrackingID(a) {
		t.Fatalf("tracking id %q does not match TRK-[0-9A-F]{12}", a)
	}
	if a == b {
		t.Fatalf("two generated tracking ids must differ, got %q twice", a)
	}
}

func TestConfirmPayment_RecordsOnce(t *testing.T) {
	repo := &stubRepo{confirmUpdated: 1}
	provider := &stubProvider{session: paidSession()}
	svc := NewService(repo, provider, "http://localhost:5173")

	res, err := svc.ConfirmPayment(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("ConfirmPayment error: %v", err)
	}

	if res.AlreadyRecorded {
		t.Fatalf("first confirmation must not be already recorded")
	}
	if res.ParcelsUpdated != 1 {
		t.Fatalf("parcels updated = %d, want 1", res.ParcelsUpdated)
	}
	if res.TransactionID != "pi_1" {
		t.Fatalf("transaction id = %q, want pi_1", res.TransactionID)
	}
	if !validation.IsValidTrackingID(res.TrackingID) {
		t.Fatalf("tracking id %q does not match TRK-[0-9A-F]{12}", res.TrackingID)
	}

	if repo.confirmCalls != 1 {
		t.Fatalf("ConfirmPayment repo calls = %d, want 1", repo.confirmCalls)
	}
	p := repo.confirmPayment
	if p == nil {
		t.Fatalf("payment record was not passed to repository")
	}
	if p.TransactionID != "pi_1" || p.ParcelID != "parcel-1" || p.ParcelName != "Documents" {
		t.Fatalf("unexpected payment record: %+v", p)
	}
	if p.AmountCents != 500 || p.Currency != "usd" || p.CustomerEmail != "a@x.com" {
		t.Fatalf("unexpected payment amounts: %+v", p)
	}
	if p.PaidAt.IsZero() {
		t.Fatalf("paid at must be set")
	}
	if repo.confirmTracking != res.TrackingID {
		t.Fatalf("tracking id passed to repo %q differs from result %q", repo.confirmTracking, res.TrackingID)
	}
}

func TestConfirmPayment_SecondCallAlreadyRecorded(t *testing.T) {
	repo := &stubRepo{confirmErr: repository.ErrDuplicateTransaction}
	provider := &stubProvider{session: paidSession()}
	svc := NewService(repo, provider, "http://localhost:5173")

	res, err := svc.ConfirmPayment(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("duplicate confirmation must not be an error, got %v", err)
	}

	if !res.AlreadyRecorded {
		t.Fatalf("expected already recorded result")
	}
	if res.ParcelsUpdated != 0 {
		t.Fatalf("parcels updated = %d, want 0", res.ParcelsUpdated)
	}
	if res.TrackingID != "" {
		t.Fatalf("no tracking id expected for duplicate, got %q", res.TrackingID)
	}
}

func TestConfirmPayment_NotPaidNoMutation(t *testing.T) {
	repo := &stubRepo{}
	session := paidSession()
	session.PaymentStatus = "unpaid"
	provider := &stubProvider{session: session}
	svc := NewService(repo, provider, "http://localhost:5173")

	_, err := svc.ConfirmPayment(context.Background(), "cs_test_1")
	if !errors.Is(err, ErrNotPaid) {
		t.Fatalf("err = %v, want ErrNotPaid", err)
	}
	if repo.confirmCalls != 0 {
		t.Fatalf("repository must not be touched for unpaid session")
	}
}

func TestConfirmPayment_MissingTransactionID(t *testing.T) {
	repo := &stubRepo{}
	session := paidSession()
	session.PaymentIntent = ""
	provider := &stubProvider{session: session}
	svc := NewService(repo, provider, "http://localhost:5173")

	_, err := svc.ConfirmPayment(context.Background(), "cs_test_1")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("err = %v, want ErrInvalidSession", err)
	}
	if repo.confirmCalls != 0 {
		t.Fatalf("repository must not be touched for invalid session")
	}
}

func TestConfirmPayment_ProviderErrorPropagates(t *testing.T) {
	repo := &stubRepo{}
	provider := &stubProvider{sessionErr: payment.ErrSessionNotFound}
	svc := NewService(repo, provider, "http://localhost:5173")

	_, err := svc.ConfirmPayment(context.Background(), "cs_missing")
	if !errors.Is(err, payment.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if repo.confirmCalls != 0 {
		t.Fatalf("repository must not be touched when provider call fails")
	}
}

func TestConfirmPayment_MissingParcelTolerated(t *testing.T) {
	repo := &stubRepo{confirmUpdated: 0}
	provider := &stubProvider{session: paidSession()}
	svc := NewService(repo, provider, "http://localhost:5173")

	res, err := svc.ConfirmPayment(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("ConfirmPayment error: %v", err)
	}
	if res.ParcelsUpdated != 0 {
		t.Fatalf("parcels updated = %d, want 0", res.ParcelsUpdated)
	}
	if res.AlreadyRecorded {
		t.Fatalf("missing parcel must not be reported as duplicate")
	}
}

func TestCreateParcel_AssignsServerID(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil, "http://localhost:5173")

	p, err := svc.CreateParcel(context.Background(), &model.Parcel{
		Name:        "Documents",
		SenderEmail: "a@x.com",
		CostCents:   500,
	})
	if err != nil {
		t.Fatalf("CreateParcel error: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("parcel id must be assigned by the server")
	}
	if p.PaymentStatus != model.ParcelStatusUnpaid {
		t.Fatalf("new parcel status = %q, want unpaid", p.PaymentStatus)
	}
	if p.TrackingID != "" {
		t.Fatalf("new parcel must not carry a tracking id")
	}
}

func TestCreateCheckoutSession_BuildsProviderParams(t *testing.T) {
	provider := &stubProvider{
		created: &payment.CheckoutSession{
			ID:  "cs_test_1",
			URL: "https://checkout.example/cs_test_1",
		},
	}
	svc := NewService(&stubRepo{}, provider, "https://zapshift.example/")

	url, err := svc.CreateCheckoutSession(context.Background(), CheckoutRequest{
		ParcelID:    "parcel-1",
		ParcelName:  "Documents",
		SenderEmail: "a@x.com",
		CostCents:   500,
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession error: %v", err)
	}
	if url != "https://checkout.example/cs_test_1" {
		t.Fatalf("redirect url = %q", url)
	}

	params := provider.createParams
	if params.AmountCents != 500 {
		t.Fatalf("amount = %d, want 500 minor units", params.AmountCents)
	}
	if params.SuccessURL != "https://zapshift.example/payment-success?session_id={CHECKOUT_SESSION_ID}" {
		t.Fatalf("success url = %q", params.SuccessURL)
	}
	if params.CancelURL != "https://zapshift.example/payment-cancel" {
		t.Fatalf("cancel url = %q", params.CancelURL)
	}
	if params.Metadata["parcelId"] != "parcel-1" || params.Metadata["parcelName"] != "Documents" {
		t.Fatalf("unexpected metadata: %+v", params.Metadata)
	}
}
