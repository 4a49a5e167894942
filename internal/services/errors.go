package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidInput       = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidOTP         = errors.New("invalid or expired OTP")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ThresholdExceededError is returned when submitting a batch would push the
// organization's approved, unpaid total past its threshold.
type ThresholdExceededError struct {
	TotalApproved decimal.Decimal
	Candidate     decimal.Decimal
	Threshold     decimal.Decimal
	Excess        decimal.Decimal
}

func (e *ThresholdExceededError) Error() string {
	return fmt.Sprintf("Batch amount exceeds threshold by %s. Threshold: %s", e.Excess.String(), e.Threshold.String())
}

// CooldownError is returned while an OTP resend is still blocked.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting another code", e.retrySeconds())
}

func (e *CooldownError) retrySeconds() int {
	s := int(e.RetryAfter.Round(time.Second) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// RetryAfterSeconds is the whole number of seconds to wait, at least 1.
func (e *CooldownError) RetryAfterSeconds() int {
	return e.retrySeconds()
}

func stateErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func inputErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

// PublicMessage is the text a client may see for err. Backend failures are
// reduced to a generic message.
func PublicMessage(err error) string {
	var exceeded *ThresholdExceededError
	var cooldown *CooldownError
	switch {
	case errors.As(err, &exceeded), errors.As(err, &cooldown):
		return err.Error()
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrInvalidOTP), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized):
		return err.Error()
	}
	return "internal error"
}

func summarizeValidation(err error) string {
	details := ValidationDetails(err)
	if len(details) == 0 {
		return err.Error()
	}
	fields := make([]string, 0, len(details))
	for f := range details {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return strings.Join(fields, ", ")
}
