package services

import (
	"context"
	"crypto/hmac"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/captcha"
	"github.com/gridbill/backend/internal/config"
	"github.com/gridbill/backend/internal/metrics"
	"github.com/gridbill/backend/internal/models"
	"github.com/gridbill/backend/internal/notify"
)

// SendOTPRequest represents the OTP request payload
// @Description OTP request structure
type SendOTPRequest struct {
	PhoneNumber  string `json:"phoneNumber" validate:"required,phone" example:"+919812345678"` // Registered phone number
	CaptchaToken string `json:"captchaToken" example:"0.zrSnRHO7h0HwSjSCU8oyzbjEtD8p"`         // CAPTCHA widget token
}

// VerifyOTPRequest represents the OTP verification payload
// @Description OTP verification structure
type VerifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone" example:"+919812345678"`
	OTP         string `json:"otp" validate:"required,numeric,min=4,max=10" example:"482913"`
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"ops@example.com"` // Staff email
	Password string `json:"password" validate:"required,min=8" example:"password123"`  // Staff password
}

// RevokeSessionsRequest names the user whose other sessions are revoked
// @Description Session revocation request
type RevokeSessionsRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token     string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

// Claims carried by every access token. SessionID must still exist in Redis
// for the token to be accepted.
type Claims struct {
	UserID    string `json:"user_id"`
	OrgID     string `json:"org_id"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// maxOTPAttempts wrong guesses burn the outstanding code.
const maxOTPAttempts = 5

func otpKey(phone string) string         { return "otp:" + phone }
func otpAttemptsKey(phone string) string { return "otp_attempts:" + phone }
func otpCooldownKey(phone string) string { return "otp_cooldown:" + phone }
func sessionKey(sid string) string       { return "session:" + sid }
func userSessionsKey(userID string) string {
	return "sessions:" + userID
}

// PasswordHasher hashes staff passwords with argon2id as "salt$hash".
type PasswordHasher struct {
	cfg config.Argon2Config
}

func NewPasswordHasher(cfg config.Argon2Config) *PasswordHasher {
	return &PasswordHasher{cfg: cfg}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Threads, h.cfg.KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (h *PasswordHasher) Verify(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Threads, uint32(len(hash)))
	return hmac.Equal(hash, computed)
}

type AuthService struct {
	db          *sql.DB
	redis       *redis.Client
	captcha     captcha.Verifier
	notifier    *notify.Notifier
	audit       *audit.Logger
	hasher      *PasswordHasher
	jwt         config.JWTConfig
	otp         config.OTPConfig
	generateOTP func(length int) string
	newID       IDGenerator
	now         func() time.Time
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, verifier captcha.Verifier, notifier *notify.Notifier,
	auditLogger *audit.Logger, hasher *PasswordHasher, jwtCfg config.JWTConfig, otpCfg config.OTPConfig) *AuthService {
	if otpCfg.Secret == "" {
		otpCfg.Secret = jwtCfg.SecretKey
	}
	return &AuthService{
		db:          db,
		redis:       redisClient,
		captcha:     verifier,
		notifier:    notifier,
		audit:       auditLogger,
		hasher:      hasher,
		jwt:         jwtCfg,
		otp:         otpCfg,
		generateOTP: generateOTP,
		newID:       newUUID,
		now:         time.Now,
	}
}

func (s *AuthService) otpDigest(phone, code string) string {
	mac := hmac.New(sha256.New, []byte(s.otp.Secret))
	mac.Write([]byte(phone + ":" + code))
	return hex.EncodeToString(mac.Sum(nil))
}

// SendOTP issues a login code by SMS. Unknown numbers get the same response
// as known ones.
func (s *AuthService) SendOTP(ctx context.Context, req SendOTPRequest, remoteIP string) error {
	if err := s.captcha.Verify(ctx, req.CaptchaToken, remoteIP); err != nil {
		metrics.OTPRequests.WithLabelValues("captcha_failed").Inc()
		if errors.Is(err, captcha.ErrFailed) {
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}
		return fmt.Errorf("verify captcha: %w", err)
	}

	phone := req.PhoneNumber
	ok, err := s.redis.SetNX(ctx, otpCooldownKey(phone), "1", s.otp.ResendCooldown).Result()
	if err != nil {
		return fmt.Errorf("set otp cooldown: %w", err)
	}
	if !ok {
		ttl, err := s.redis.TTL(ctx, otpCooldownKey(phone)).Result()
		if err != nil || ttl <= 0 {
			ttl = s.otp.ResendCooldown
		}
		metrics.OTPRequests.WithLabelValues("cooldown").Inc()
		return &CooldownError{RetryAfter: ttl}
	}

	var userID string
	err = s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE phone_number = $1", phone).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		slog.InfoContext(ctx, "[AUTH] OTP requested for unknown number")
		metrics.OTPRequests.WithLabelValues("unknown").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	code := s.generateOTP(s.otp.Length)
	if err := s.redis.Set(ctx, otpKey(phone), s.otpDigest(phone, code), s.otp.TTL).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	if err := s.redis.Del(ctx, otpAttemptsKey(phone)).Err(); err != nil {
		return fmt.Errorf("reset otp attempts: %w", err)
	}

	minutes := int(s.otp.TTL / time.Minute)
	err = s.notifier.SendSMS(ctx, notify.SMSMessage{
		To:      phone,
		Body:    fmt.Sprintf("Your GridBill login code is %s. It expires in %d minutes.", code, minutes),
		Purpose: "otp",
	})
	if err != nil {
		return fmt.Errorf("dispatch otp: %w", err)
	}

	metrics.OTPRequests.WithLabelValues("sent").Inc()
	slog.InfoContext(ctx, "[AUTH] OTP sent", "user_id", userID)
	return nil
}

// VerifyOTP consumes the code and opens a session.
func (s *AuthService) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*AuthResponse, error) {
	stored, err := s.redis.Get(ctx, otpKey(req.PhoneNumber)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidOTP
	}
	if err != nil {
		return nil, fmt.Errorf("read otp: %w", err)
	}
	if !hmac.Equal([]byte(stored), []byte(s.otpDigest(req.PhoneNumber, req.OTP))) {
		slog.InfoContext(ctx, "[AUTH] invalid OTP")
		if err := s.countFailedOTP(ctx, req.PhoneNumber); err != nil {
			return nil, err
		}
		return nil, ErrInvalidOTP
	}
	if err := s.redis.Del(ctx, otpKey(req.PhoneNumber), otpAttemptsKey(req.PhoneNumber)).Err(); err != nil {
		return nil, fmt.Errorf("consume otp: %w", err)
	}

	user, err := s.loadUser(ctx, "phone_number", req.PhoneNumber)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidOTP
	}
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, user)
}

// countFailedOTP records a wrong guess. The counter lives as long as a code
// does; once it reaches maxOTPAttempts the code is discarded.
func (s *AuthService) countFailedOTP(ctx context.Context, phone string) error {
	key := otpAttemptsKey(phone)
	n, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("count otp attempts: %w", err)
	}
	if n == 1 {
		if err := s.redis.Expire(ctx, key, s.otp.TTL).Err(); err != nil {
			return fmt.Errorf("expire otp attempts: %w", err)
		}
	}
	if n < maxOTPAttempts {
		return nil
	}
	slog.WarnContext(ctx, "[AUTH] OTP discarded after too many attempts", "attempts", n)
	if err := s.redis.Del(ctx, otpKey(phone), key).Err(); err != nil {
		return fmt.Errorf("discard otp: %w", err)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, err := s.loadUser(ctx, "email", strings.ToLower(req.Email))
	if errors.Is(err, ErrNotFound) {
		slog.InfoContext(ctx, "[AUTH] login for unknown email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		slog.InfoContext(ctx, "[AUTH] invalid password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	return s.issueSession(ctx, user)
}

// column is a fixed identifier, never user input.
func (s *AuthService) loadUser(ctx context.Context, column, value string) (models.User, error) {
	var u models.User
	var phone, email sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, organization_id, full_name, phone_number, email, role, password_hash FROM users WHERE "+column+" = $1",
		value).Scan(&u.ID, &u.OrganizationID, &u.FullName, &phone, &email, &u.Role, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return u, notFound("user")
	}
	if err != nil {
		return u, fmt.Errorf("load user: %w", err)
	}
	u.PhoneNumber = phone.String
	u.Email = email.String
	return u, nil
}

func (s *AuthService) issueSession(ctx context.Context, user models.User) (*AuthResponse, error) {
	sid := s.newID()
	now := s.now()
	expiresAt := now.Add(s.jwt.Expiry)

	if err := s.redis.Set(ctx, sessionKey(sid), user.ID, s.jwt.Expiry).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	if err := s.redis.SAdd(ctx, userSessionsKey(user.ID), sid).Err(); err != nil {
		return nil, fmt.Errorf("index session: %w", err)
	}
	if err := s.redis.Expire(ctx, userSessionsKey(user.ID), s.jwt.Expiry).Err(); err != nil {
		return nil, fmt.Errorf("expire session index: %w", err)
	}

	claims := Claims{
		UserID:    user.ID,
		OrgID:     user.OrganizationID,
		Role:      user.Role,
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwt.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	user.PasswordHash = ""
	slog.InfoContext(ctx, "[AUTH] session opened", "user_id", user.ID, "org_id", user.OrganizationID)
	return &AuthResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// ParseToken validates signature and expiry.
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.jwt.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

func (s *AuthService) SessionActive(ctx context.Context, sid string) (bool, error) {
	n, err := s.redis.Exists(ctx, sessionKey(sid)).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

// Logout ends the session the token belongs to.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	if err := s.redis.Del(ctx, sessionKey(claims.SessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := s.redis.SRem(ctx, userSessionsKey(claims.UserID), claims.SessionID).Err(); err != nil {
		return fmt.Errorf("unindex session: %w", err)
	}
	return nil
}

// RevokeSessions ends every session of targetUserID except the caller's
// own. Admins may revoke any user of their organization; others only
// themselves.
func (s *AuthService) RevokeSessions(ctx context.Context, actor *Claims, targetUserID string) (int, error) {
	if targetUserID != actor.UserID {
		if actor.Role != models.RoleAdmin {
			return 0, fmt.Errorf("%w: only admins can revoke other users' sessions", ErrForbidden)
		}
		var orgID string
		err := s.db.QueryRowContext(ctx, "SELECT organization_id FROM users WHERE id = $1", targetUserID).Scan(&orgID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && orgID != actor.OrgID) {
			return 0, notFound("user")
		}
		if err != nil {
			return 0, fmt.Errorf("load user: %w", err)
		}
	}

	key := userSessionsKey(targetUserID)
	sids, err := s.redis.SMembers(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	revoked := 0
	for _, sid := range sids {
		if sid == actor.SessionID {
			continue
		}
		if err := s.redis.Del(ctx, sessionKey(sid)).Err(); err != nil {
			return revoked, fmt.Errorf("delete session: %w", err)
		}
		if err := s.redis.SRem(ctx, key, sid).Err(); err != nil {
			return revoked, fmt.Errorf("unindex session: %w", err)
		}
		revoked++
	}

	s.audit.LogOperation(audit.EventSessionRevoke, targetUserID, actor.OrgID, actor.UserID, "REVOKED",
		map[string]string{"sessions": fmt.Sprint(revoked)})
	return revoked, nil
}

func generateOTP(length int) string {
	if length <= 0 {
		length = 6
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := cryptorand.Int(cryptorand.Reader, limit)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%0*d", length, n)
}
