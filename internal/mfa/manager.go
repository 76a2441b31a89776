// Package mfa manages TOTP enrollment and verification for user accounts.
package mfa

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/congo-pay/authgraph/internal/autherr"
	"github.com/congo-pay/authgraph/internal/identity"
)

const (
	secretSize = 20
	period     = 30
	skew       = 1
	qrSize     = 200
)

var validateOpts = totp.ValidateOpts{
	Period:    period,
	Skew:      skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Enrollment is what a user needs to register the secret with an authenticator app.
type Enrollment struct {
	Secret string
	URI    string
	// QRCode is a data:image/png;base64 URL encoding URI.
	QRCode string
}

// Manager generates secrets and toggles MFA on user records.
type Manager struct {
	repo   identity.Repository
	issuer string
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates an MFA manager labelling enrollments with issuer.
func NewManager(repo identity.Repository, issuer string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{repo: repo, issuer: issuer, logger: logger, now: time.Now}
}

// WithClock replaces the wall clock used by VerifyUser.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Enroll generates a fresh secret for p. It does not enable MFA.
func (m *Manager) Enroll(p identity.Profile) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: p.Email,
		Period:      period,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return Enrollment{}, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Enrollment{}, fmt.Errorf("encode qr code: %w", err)
	}

	return Enrollment{
		Secret: key.Secret(),
		URI:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// ConfirmEnable stores secret and turns MFA on for userID.
func (m *Manager) ConfirmEnable(ctx context.Context, userID, secret string) (identity.Profile, error) {
	on := true
	matched, err := m.repo.UpdateFields(ctx, userID, identity.Changes{MFAEnabled: &on, MFASecret: &secret})
	if err != nil {
		m.logger.ErrorContext(ctx, "enable mfa", slog.String("user_id", userID), slog.Any("error", err))
		return identity.Profile{}, autherr.ErrInternal
	}
	if !matched {
		return identity.Profile{}, autherr.ErrMFAEnableFailed
	}
	m.logger.InfoContext(ctx, "mfa enabled", slog.String("user_id", userID))
	return m.reload(ctx, userID, autherr.ErrMFAEnableFailed)
}

// Disable clears the secret and turns MFA off for userID.
func (m *Manager) Disable(ctx context.Context, userID string) (identity.Profile, error) {
	off := false
	matched, err := m.repo.UpdateFields(ctx, userID, identity.Changes{MFAEnabled: &off, ClearMFASecret: true})
	if err != nil {
		m.logger.ErrorContext(ctx, "disable mfa", slog.String("user_id", userID), slog.Any("error", err))
		return identity.Profile{}, autherr.ErrInternal
	}
	if !matched {
		return identity.Profile{}, autherr.ErrMFADisableFailed
	}
	m.logger.InfoContext(ctx, "mfa disabled", slog.String("user_id", userID))
	return m.reload(ctx, userID, autherr.ErrMFADisableFailed)
}

// VerifyToken checks code against secret at the current time.
func (m *Manager) VerifyToken(secret, code string) bool {
	return m.VerifyTokenAt(secret, code, m.now())
}

// VerifyTokenAt checks code against secret with a 30 second step and one
// step of drift either side.
func (m *Manager) VerifyTokenAt(secret, code string, at time.Time) bool {
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), validateOpts)
	return err == nil && ok
}

// VerifyUser checks code against the stored secret of userID.
func (m *Manager) VerifyUser(ctx context.Context, userID, code string) error {
	user, err := m.repo.FindByID(ctx, userID)
	if errors.Is(err, identity.ErrNotFound) {
		return autherr.ErrMFANotEnabled
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "verify mfa lookup", slog.String("user_id", userID), slog.Any("error", err))
		return autherr.ErrInternal
	}
	if !user.MFAEnabled || user.MFASecret == "" {
		return autherr.ErrMFANotEnabled
	}
	if !m.VerifyTokenAt(user.MFASecret, code, m.now()) {
		return autherr.ErrInvalidMFAToken
	}
	return nil
}

func (m *Manager) reload(ctx context.Context, userID string, notFound error) (identity.Profile, error) {
	user, err := m.repo.FindByID(ctx, userID)
	if errors.Is(err, identity.ErrNotFound) {
		return identity.Profile{}, notFound
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "reload user", slog.String("user_id", userID), slog.Any("error", err))
		return identity.Profile{}, autherr.ErrInternal
	}
	return user.Profile(), nil
}
