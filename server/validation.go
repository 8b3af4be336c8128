package server

import (
	"fmt"

	"github.com/quiestce/quiestce/storage"
)

// Request parameter names, as they appear on the wire
const (
	ParamClientID            = "client_id"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamRedirectURI         = "redirect_uri"
	ParamResponseType        = "response_type"
	ParamState               = "state"
	ParamCode                = "code"
)

// CheckAuthorizationRequest requires every authorization request parameter.
// The error carries the state when one was sent.
func CheckAuthorizationRequest(req *storage.AuthorizationRequest) error {
	return requireParams(req.State,
		ParamClientID, req.ClientID,
		ParamCodeChallenge, req.CodeChallenge,
		ParamCodeChallengeMethod, req.CodeChallengeMethod,
		ParamRedirectURI, req.RedirectURI,
		ParamResponseType, req.ResponseType,
		ParamState, req.State,
	)
}

// CheckExchangeRequest requires the code and redirect_uri of a token request.
// Client credentials are checked by ClientValidator.
func CheckExchangeRequest(req ExchangeRequest) error {
	return requireParams("",
		ParamCode, req.Code,
		ParamRedirectURI, req.RedirectURI,
	)
}

// requireParams takes name/value pairs and reports the first empty value
func requireParams(state string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return ErrInvalidRequest(fmt.Sprintf("Missing required parameter: %s.", pairs[i]), state)
		}
	}
	return nil
}
