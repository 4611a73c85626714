// Package auth implements mobile-number login with one-time passwords.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/bankline/internal/models"
	"gorm.io/gorm"
)

// DefaultOTPTTL is how long a code stays valid when ServiceOpts.OTPTTL is zero.
const DefaultOTPTTL = 5 * time.Minute

// SessionOpener returns the persistent chat session a login lands in.
type SessionOpener interface {
	OpenForUser(ctx context.Context, userID, language, location string) (string, error)
}

// ServiceOpts configures a Service.
type ServiceOpts struct {
	DB       *gorm.DB
	Sessions SessionOpener
	SMS      Sender
	OTPTTL   time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
	// Generate returns a new code. Defaults to a crypto-random 6-digit code.
	Generate func() (string, error)
}

// Service sends and verifies OTPs.
type Service struct {
	db       *gorm.DB
	sessions SessionOpener
	sms      Sender
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time
	generate func() (string, error)
}

// NewService validates opts and returns a Service.
func NewService(opts ServiceOpts) (*Service, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("auth: db is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("auth: sessions is required")
	}
	if opts.SMS == nil {
		return nil, fmt.Errorf("auth: sms sender is required")
	}
	s := &Service{
		db:       opts.DB,
		sessions: opts.Sessions,
		sms:      opts.SMS,
		ttl:      opts.OTPTTL,
		log:      opts.Logger.With().Str("component", "auth").Logger(),
		now:      opts.Now,
		generate: opts.Generate,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultOTPTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.generate == nil {
		s.generate = generateOTP
	}
	return s, nil
}

// generateOTP returns a uniformly random code in 100000..999999.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// SendOTP registers the user if needed, stores a fresh code and delivers it.
func (s *Service) SendOTP(ctx context.Context, name, mobileNo string) error {
	name, mobileNo = strings.TrimSpace(name), strings.TrimSpace(mobileNo)
	if name == "" || mobileNo == "" {
		return &ValidationError{Message: "Mobile number and name are required"}
	}

	user, err := s.findUser(ctx, mobileNo)
	if errors.Is(err, ErrUserNotFound) {
		user = &models.User{ID: uuid.NewString(), Name: name, MobileNo: mobileNo, Active: true}
		if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
			return fmt.Errorf("auth: create user %s: %w", mobileNo, err)
		}
		s.log.Info().Str("user", user.ID).Msg("user registered")
	} else if err != nil {
		return err
	}

	code, err := s.generate()
	if err != nil {
		return fmt.Errorf("auth: generate otp: %w", err)
	}
	expires := s.now().Add(s.ttl)
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"mobile_otp":         code,
		"mobile_otp_expires": expires,
	}).Error; err != nil {
		return fmt.Errorf("auth: store otp for %s: %w", mobileNo, err)
	}

	text := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes()))
	if err := s.sms.Send(ctx, mobileNo, text); err != nil {
		return fmt.Errorf("auth: deliver otp to %s: %w", mobileNo, err)
	}
	return nil
}

// LoginRequest holds the fields of an OTP login.
type LoginRequest struct {
	MobileNo string `json:"mobileNo"`
	OTP      string `json:"otp"`
	Language string `json:"language"`
	Location string `json:"location"`
}

// LoginResult identifies the logged-in user and their chat session.
type LoginResult struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Login verifies the code, consumes it and opens the user's chat session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	mobileNo, otp := strings.TrimSpace(req.MobileNo), strings.TrimSpace(req.OTP)
	if mobileNo == "" || otp == "" {
		return nil, &ValidationError{Message: "Mobile number and OTP are required"}
	}

	user, err := s.findUser(ctx, mobileNo)
	if err != nil {
		return nil, err
	}
	if user.MobileOTP == "" || user.MobileOTPExpires == nil ||
		subtle.ConstantTimeCompare([]byte(user.MobileOTP), []byte(otp)) != 1 ||
		s.now().After(*user.MobileOTPExpires) {
		return nil, ErrInvalidOTP
	}

	// The code is only consumed once the session exists, so a failed open
	// can be retried with the same code. OpenForUser reuses the open session
	// if clearing fails after it.
	sessionID, err := s.sessions.OpenForUser(ctx, user.ID, req.Language, req.Location)
	if err != nil {
		return nil, fmt.Errorf("auth: open session for %s: %w", user.ID, err)
	}
	if err := s.clearOTP(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info().Str("user", user.ID).Str("session", sessionID).Msg("login")
	return &LoginResult{UserID: user.ID, SessionID: sessionID}, nil
}

// VerifyOTP logs in with the code and returns the user and session ids.
func (s *Service) VerifyOTP(ctx context.Context, mobileNo, otp, language string) (string, string, error) {
	res, err := s.Login(ctx, LoginRequest{MobileNo: mobileNo, OTP: otp, Language: language})
	if err != nil {
		return "", "", err
	}
	return res.UserID, res.SessionID, nil
}

// PurgeExpired clears codes that expired without being used and returns
// how many users were affected.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("mobile_otp_expires IS NOT NULL AND mobile_otp_expires < ?", s.now()).
		Updates(map[string]interface{}{"mobile_otp": "", "mobile_otp_expires": nil})
	if res.Error != nil {
		return 0, fmt.Errorf("auth: purge expired otps: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Debug().Int64("count", res.RowsAffected).Msg("purged expired otps")
	}
	return res.RowsAffected, nil
}

func (s *Service) clearOTP(ctx context.Context, user *models.User) error {
	err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"mobile_otp":         "",
		"mobile_otp_expires": nil,
	}).Error
	if err != nil {
		return fmt.Errorf("auth: clear otp for %s: %w", user.MobileNo, err)
	}
	return nil
}

func (s *Service) findUser(ctx context.Context, mobileNo string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("mobile_no = ?", mobileNo).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: find user %s: %w", mobileNo, err)
	}
	return &user, nil
}
