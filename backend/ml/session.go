// Package ml trains and serves the session attack classifier: label encoders,
// standard scaler, random forest, evaluation metrics and artifact persistence.
package ml

import (
	"errors"
	"fmt"
)

// Column names shared by the training CSV, the artifacts and the API.
const (
	ColPacketSize    = "network_packet_size"
	ColProtocol      = "protocol_type"
	ColLoginAttempts = "login_attempts"
	ColDuration      = "session_duration"
	ColEncryption    = "encryption_used"
	ColIPReputation  = "ip_reputation_score"
	ColFailedLogins  = "failed_logins"
	ColBrowser       = "browser_type"
	ColUnusualTime   = "unusual_time_access"

	ColSessionID = "session_id"
	ColLabel     = "attack_detected"
)

// FeatureNames is the model input column order. Training and inference must
// both build rows in exactly this order.
var FeatureNames = []string{
	ColPacketSize,
	ColProtocol,
	ColLoginAttempts,
	ColDuration,
	ColEncryption,
	ColIPReputation,
	ColFailedLogins,
	ColBrowser,
	ColUnusualTime,
}

// CategoricalColumns are label encoded before scaling.
var CategoricalColumns = []string{ColProtocol, ColEncryption, ColBrowser}

var (
	ErrInvalidSession  = errors.New("invalid session record")
	ErrUnknownCategory = errors.New("unknown category")
)

// Session is one observed network session.
type Session struct {
	NetworkPacketSize int     `json:"network_packet_size"`
	ProtocolType      string  `json:"protocol_type"`
	LoginAttempts     int     `json:"login_attempts"`
	SessionDuration   float64 `json:"session_duration"`
	EncryptionUsed    string  `json:"encryption_used"`
	IPReputationScore float64 `json:"ip_reputation_score"`
	FailedLogins      int     `json:"failed_logins"`
	BrowserType       string  `json:"browser_type"`
	UnusualTimeAccess bool    `json:"unusual_time_access"`
}

// DefaultSession mirrors the initial values of the dashboard form.
func DefaultSession() Session {
	return Session{
		NetworkPacketSize: 500,
		ProtocolType:      "TCP",
		LoginAttempts:     2,
		SessionDuration:   500.0,
		EncryptionUsed:    "AES",
		IPReputationScore: 0.5,
		FailedLogins:      1,
		BrowserType:       "Chrome",
		UnusualTimeAccess: false,
	}
}

// Validate enforces the input ranges accepted by the form. It does not check
// categorical values; those are checked against the fitted encoders.
func (s Session) Validate() error {
	switch {
	case s.NetworkPacketSize < 100 || s.NetworkPacketSize > 2000:
		return fmt.Errorf("%w: %s must be within [100, 2000], got %d", ErrInvalidSession, ColPacketSize, s.NetworkPacketSize)
	case s.LoginAttempts < 0 || s.LoginAttempts > 10:
		return fmt.Errorf("%w: %s must be within [0, 10], got %d", ErrInvalidSession, ColLoginAttempts, s.LoginAttempts)
	case s.SessionDuration < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidSession, ColDuration)
	case s.IPReputationScore < 0 || s.IPReputationScore > 1:
		return fmt.Errorf("%w: %s must be within [0, 1], got %v", ErrInvalidSession, ColIPReputation, s.IPReputationScore)
	case s.FailedLogins < 0 || s.FailedLogins > 10:
		return fmt.Errorf("%w: %s must be within [0, 10], got %d", ErrInvalidSession, ColFailedLogins, s.FailedLogins)
	}

	return nil
}

// categorical returns the raw string for a categorical column.
func (s Session) categorical(col string) string {
	switch col {
	case ColProtocol:
		return s.ProtocolType
	case ColEncryption:
		return s.EncryptionUsed
	case ColBrowser:
		return s.BrowserType
	}

	return ""
}

// Row encodes s in FeatureNames order using the given encoders.
func (s Session) Row(enc EncoderSet) ([]float64, error) {
	codes := make(map[string]float64, len(CategoricalColumns))
	for _, col := range CategoricalColumns {
		code, err := enc.Transform(col, s.categorical(col))
		if err != nil {
			return nil, err
		}
		codes[col] = float64(code)
	}

	unusual := 0.0
	if s.UnusualTimeAccess {
		unusual = 1.0
	}

	return []float64{
		float64(s.NetworkPacketSize),
		codes[ColProtocol],
		float64(s.LoginAttempts),
		s.SessionDuration,
		codes[ColEncryption],
		s.IPReputationScore,
		float64(s.FailedLogins),
		codes[ColBrowser],
		unusual,
	}, nil
}
