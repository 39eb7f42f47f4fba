package domain

import "time"

// Factor types.
const (
	FactorTypeTOTP = "totp"
)

// MFAFactor mirrors a factor held by the backing auth service. The secret
// never leaves the backing service; this record tracks which factor is the
// user's active one and when it was last exercised.
type MFAFactor struct {
	ID           string
	UserID       string
	BackingID    string
	Type         string
	FriendlyName string
	Active       bool
	EnrolledAt   time.Time
	LastUsedAt   *time.Time
}

// MFAStatus is the step-up posture of one user.
type MFAStatus struct {
	Enrolled bool
	Factor   *MFAFactor
}

// EnrollmentMaterial is the one-time TOTP provisioning payload relayed to
// the user's authenticator app.
type EnrollmentMaterial struct {
	FactorID string
	Secret   string
	URI      string
	QRCode   string
}

// ChallengeTicket is an open step-up challenge awaiting a code.
type ChallengeTicket struct {
	ChallengeID string
	FactorID    string
	ExpiresAt   time.Time
}
