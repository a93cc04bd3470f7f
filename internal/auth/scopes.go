package auth

const (
	ScopeOpenID         = "openid"
	ScopeProfile        = "profile"
	ScopeEmail          = "email"
	ScopeApprovalsRead  = "approvals:read"
	ScopeApprovalsWrite = "approvals:write"
)

// AllScopes defines the full set of scopes used by the Swagger UI / Frontend
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeApprovalsRead,
	ScopeApprovalsWrite,
}
