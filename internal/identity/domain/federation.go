package domain

// FederatedIdentity is a verified identity asserted by the external
// provider after a completed authorization-code exchange.
type FederatedIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// AuthorizationTicket is handed to the frontend to begin a federated login.
// State, Nonce and CodeVerifier round-trip via the client and come back on
// the callback.
type AuthorizationTicket struct {
	URL          string
	State        string
	Nonce        string
	CodeVerifier string
}
