package auth

import (
	"net/url"
	"strings"

	"github.com/chainsso/go-signon-server/oauth2"
)

// AuthorizeParams carries the authorization endpoint's query parameters.
// The HTTP layer guarantees each came in as a single scalar.
type AuthorizeParams struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// validateAuthorizeParams checks everything that can be decided without a
// store round trip. On success the PKCE method is normalized: a present
// code_challenge with no method defaults to S256.
func validateAuthorizeParams(params *AuthorizeParams, production bool) *FlowError {
	if params.ResponseType == "" || params.ClientID == "" || params.RedirectURI == "" {
		return invalidRequest("response_type, client_id and redirect_uri are required")
	}
	if params.ResponseType != string(oauth2.CodeResponseType) {
		return unsupportedResponseType("only response_type=code is supported")
	}
	if err := validateRedirectURIPolicy(params.RedirectURI, production); err != nil {
		return err
	}

	if params.CodeChallenge != "" {
		switch oauth2.CodeMethodType(params.CodeChallengeMethod) {
		case oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypePlain:
		case "":
			params.CodeChallengeMethod = string(oauth2.CodeMethodTypeS256)
		default:
			return invalidRequest("code_challenge_method must be S256 or plain")
		}
	} else if params.CodeChallengeMethod != "" {
		return invalidRequest("code_challenge_method requires a code_challenge")
	}

	return nil
}

// validateRedirectURIPolicy enforces the deployment scheme policy: https
// always allowed; plain http only for loopback hosts outside production;
// custom schemes (mobile deep links) always allowed.
func validateRedirectURIPolicy(uri string, production bool) *FlowError {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme == "" {
		return invalidRequest("redirect_uri is not a valid URI")
	}

	switch parsed.Scheme {
	case "https":
		if parsed.Host == "" {
			return invalidRequest("redirect_uri is not a valid URI")
		}
	case "http":
		if production {
			return invalidRequest("redirect_uri must use https")
		}
		if !isLoopbackHost(parsed.Hostname()) {
			return invalidRequest("http redirect_uri is only allowed for localhost")
		}
	default:
		// Custom scheme deep link, e.g. myapp://callback.
	}

	if parsed.Fragment != "" {
		return invalidRequest("redirect_uri must not contain a fragment")
	}

	return nil
}

func isLoopbackHost(host string) bool {
	return strings.EqualFold(host, "localhost") || host == "127.0.0.1" || host == "::1"
}
