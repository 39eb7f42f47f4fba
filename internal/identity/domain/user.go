package domain

import "time"

// Roles assignable to platform users.
const (
	RoleInvestor = "investor"
	RoleAdvisor  = "advisor"
	RoleAdmin    = "admin"
)

// User is a platform account. FederatedSubject links it to the external
// identity provider; BackingAccountID links it to the backing auth service.
// Either may be unset while provisioning is incomplete.
type User struct {
	ID               string
	Email            string
	DisplayName      string
	Role             string
	Active           bool
	FederatedSubject *string
	BackingAccountID *string
	MFAFactorID      *string
	WalletAddress    *string
	TermsAcceptedAt  *time.Time
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
