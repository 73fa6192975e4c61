package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteOAuthAuthorize       = "/oauth/authorize"
	RouteOAuthCheck           = "/oauth/check"
	RouteOAuthVerifySignature = "/oauth/verify-signature"
	RouteOAuthToken           = "/oauth/token"
	RouteOAuthUserInfo        = "/oauth/userinfo"
	RouteOAuthLogout          = "/oauth/logout"
	RouteHealth               = "/health"
)
