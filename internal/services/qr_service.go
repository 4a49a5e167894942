package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const paymentQRTTL = 15 * time.Minute

// PaymentQR is a UPI collect link for a batch amount and its PNG rendering.
type PaymentQR struct {
	Reference string    `json:"reference"`
	Link      string    `json:"link"`
	ImagePNG  string    `json:"imagePng"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PaymentQRTarget is what a QR reference resolves to.
type PaymentQRTarget struct {
	OrganizationID string          `json:"organizationId"`
	BatchID        string          `json:"batchId"`
	Amount         decimal.Decimal `json:"amount"`
}

type QRService struct {
	redis     *redis.Client
	payeeVPA  string
	payeeName string
	currency  string
	nonce     func() string
	now       func() time.Time
}

func NewQRService(redisClient *redis.Client, payeeVPA, payeeName, currency string) *QRService {
	return &QRService{
		redis:     redisClient,
		payeeVPA:  payeeVPA,
		payeeName: payeeName,
		currency:  currency,
		nonce:     generateNonce,
		now:       time.Now,
	}
}

func qrKey(ref string) string {
	return "payqr:" + ref
}

// Generate builds a upi://pay link for the batch and remembers which batch
// the reference belongs to.
func (s *QRService) Generate(ctx context.Context, orgID, batchID string, amount decimal.Decimal) (*PaymentQR, error) {
	if s.payeeVPA == "" {
		return nil, inputErr("payment QR is not configured")
	}

	ref := s.nonce()
	params := url.Values{}
	params.Set("pa", s.payeeVPA)
	params.Set("pn", s.payeeName)
	params.Set("am", amount.StringFixed(2))
	params.Set("cu", s.currency)
	params.Set("tr", ref)
	params.Set("tn", "Batch "+batchID)
	link := "upi://pay?" + params.Encode()

	data, err := json.Marshal(PaymentQRTarget{OrganizationID: orgID, BatchID: batchID, Amount: amount})
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, qrKey(ref), data, paymentQRTTL).Err(); err != nil {
		return nil, fmt.Errorf("store qr reference: %w", err)
	}

	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}

	return &PaymentQR{
		Reference: ref,
		Link:      link,
		ImagePNG:  base64.StdEncoding.EncodeToString(buf.Bytes()),
		ExpiresAt: s.now().Add(paymentQRTTL),
	}, nil
}

// Resolve looks up an unexpired reference within the organization.
func (s *QRService) Resolve(ctx context.Context, orgID, ref string) (*PaymentQRTarget, error) {
	data, err := s.redis.Get(ctx, qrKey(ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("payment reference")
	}
	if err != nil {
		return nil, fmt.Errorf("read qr reference: %w", err)
	}

	var target PaymentQRTarget
	if err := json.Unmarshal(data, &target); err != nil {
		return nil, fmt.Errorf("decode qr reference: %w", err)
	}
	if target.OrganizationID != orgID {
		return nil, notFound("payment reference")
	}
	return &target, nil
}

func generateNonce() string {
	b := make([]byte, 12)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
