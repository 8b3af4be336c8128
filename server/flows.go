package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"math"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/quiestce/quiestce/directory"
	"github.com/quiestce/quiestce/instrumentation"
	"github.com/quiestce/quiestce/internal/util"
	"github.com/quiestce/quiestce/security"
	"github.com/quiestce/quiestce/storage"
)

// TokenTypeBearer is the token_type of every issued token
const TokenTypeBearer = "Bearer"

// codeLogLength is how much of a code or state ends up in logs
const codeLogLength = 8

// AuthorizationRedirect is where the user agent goes after approval
type AuthorizationRedirect struct {
	RedirectURI string
	Code        string
	State       string
}

// URL returns RedirectURI with code and state appended to its query
func (r *AuthorizationRedirect) URL() (string, error) {
	return util.AppendQuery(r.RedirectURI, url.Values{
		"code":  {r.Code},
		"state": {r.State},
	})
}

// ExchangeRequest is a token request after client authentication has been
// extracted from the transport
type ExchangeRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CodeVerifier string
}

// TokenResponse is the result of a successful exchange
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"` // seconds until expiry
	ExpiresAt   time.Time `json:"-"`
}

// Begin validates an authorization request and stores it as pending under its
// state. Nothing is stored when validation fails.
func (s *Server) Begin(ctx context.Context, req *storage.AuthorizationRequest) error {
	ctx, span := s.startSpan(ctx, "server.begin")
	defer span.End()
	instrumentation.AddFlowAttributes(span, req.ClientID, "")
	instrumentation.AddPKCEAttributes(span, req.CodeChallengeMethod)

	clientIP := security.ClientIPFromContext(ctx)

	if err := CheckAuthorizationRequest(req); err != nil {
		s.failSpan(span, err)
		return err
	}
	if err := s.clients.ValidateRequest(req); err != nil {
		s.failSpan(span, err)
		s.auditValidationFailure(err, req.ClientID, clientIP, req.RedirectURI)
		return err
	}

	if err := s.store.PutPending(ctx, req); err != nil {
		return s.backendFailure(ctx, span, "failed to store pending authorization request", err)
	}

	s.Auditor.LogAuthorizationStarted(req.ClientID, clientIP, req.CodeChallengeMethod)
	if s.metrics != nil {
		s.metrics.RecordAuthorizationStarted(ctx, req.ClientID, req.CodeChallengeMethod)
	}
	security.LoggerFromContext(ctx, s.Logger).Debug("Authorization request accepted",
		"client_id", req.ClientID,
		"state_prefix", util.SafeTruncate(req.State, codeLogLength))

	instrumentation.SetSpanSuccess(span)
	return nil
}

// Approve promotes the pending request under state to a grant approved by
// identityID. The pending request is consumed even if the identity is
// unknown, so an approval cannot be retried.
func (s *Server) Approve(ctx context.Context, state, identityID string) (*AuthorizationRedirect, error) {
	ctx, span := s.startSpan(ctx, "server.approve")
	defer span.End()

	redirect, err := s.approve(ctx, span, state, identityID)
	if s.metrics != nil {
		s.metrics.RecordAuthorizationApproved(ctx, err == nil)
	}
	return redirect, err
}

func (s *Server) approve(ctx context.Context, span trace.Span, state, identityID string) (*AuthorizationRedirect, error) {
	clientIP := security.ClientIPFromContext(ctx)

	req, err := s.store.TakePending(ctx, state)
	if err != nil {
		if errors.Is(err, storage.ErrPendingNotFound) {
			e := ErrStateUnknown(state)
			s.failSpan(span, e)
			s.Auditor.LogEvent(security.Event{Type: security.EventStateUnknown, IPAddress: clientIP})
			return nil, e
		}
		return nil, s.backendFailure(ctx, span, "failed to read pending authorization request", err)
	}
	instrumentation.AddFlowAttributes(span, req.ClientID, identityID)

	ident, ok := directory.LookupString(s.directory, identityID)
	if !ok {
		e := ErrUserNotFound(req.State)
		s.failSpan(span, e)
		s.Auditor.LogAuthFailure(identityID, req.ClientID, clientIP, e.Code)
		return nil, e
	}

	grant := storage.NewGrant(req, ident.ID.String(), s.Config.Clock())
	if err := s.store.PutGrant(ctx, grant); err != nil {
		return nil, s.backendFailure(ctx, span, "failed to store authorization grant", err)
	}

	s.Auditor.LogAuthorizationApproved(grant.IdentityID, grant.ClientID, clientIP)
	security.LoggerFromContext(ctx, s.Logger).Debug("Authorization request approved",
		"client_id", grant.ClientID,
		"code_prefix", util.SafeTruncate(grant.Code, codeLogLength))

	instrumentation.SetSpanSuccess(span)
	return &AuthorizationRedirect{
		RedirectURI: grant.RedirectURI,
		Code:        grant.Code,
		State:       grant.State,
	}, nil
}

// Exchange authenticates the client, consumes the grant for req.Code and
// issues a token for the approving identity. The client is checked before
// the store is touched, so a bad credential does not burn the code.
func (s *Server) Exchange(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "server.exchange")
	defer span.End()
	instrumentation.AddFlowAttributes(span, req.ClientID, "")

	clientIP := security.ClientIPFromContext(ctx)

	if err := CheckExchangeRequest(req); err != nil {
		s.failSpan(span, err)
		return nil, err
	}
	if err := s.clients.ValidateCredential(req.ClientID, req.ClientSecret); err != nil {
		s.failSpan(span, err)
		s.auditValidationFailure(err, req.ClientID, clientIP, "")
		return nil, err
	}

	grant, err := s.store.TakeGrant(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrGrantNotFound) {
			return nil, s.codeNotFound(ctx, span, req.ClientID, clientIP)
		}
		return nil, s.backendFailure(ctx, span, "failed to read authorization grant", err)
	}
	instrumentation.AddFlowAttributes(span, "", grant.IdentityID)
	instrumentation.AddPKCEAttributes(span, grant.CodeChallengeMethod)

	if err := s.clients.ValidateRedirectURI(req.RedirectURI, grant.State); err != nil {
		s.failSpan(span, err)
		s.Auditor.LogInvalidRedirect(req.ClientID, clientIP, req.RedirectURI)
		return nil, err
	}

	if s.Config.EnforcePKCE && !verifyPKCE(grant.Code, grant.CodeChallengeMethod, req.CodeVerifier) {
		s.Auditor.LogEvent(security.Event{
			Type:       security.EventInvalidPKCE,
			IdentityID: grant.IdentityID,
			ClientID:   req.ClientID,
			IPAddress:  clientIP,
		})
		return nil, s.codeNotFound(ctx, span, req.ClientID, clientIP)
	}

	accessToken, expiresAt, err := s.signer.Issue(grant.IdentityID)
	if err != nil {
		return nil, s.backendFailure(ctx, span, "failed to sign token", err)
	}
	expiresIn := int64(math.Ceil(expiresAt.Sub(s.Config.Clock()).Seconds()))

	s.Auditor.LogTokenIssued(grant.IdentityID, req.ClientID, clientIP, expiresAt)
	if s.metrics != nil {
		s.metrics.RecordCodeExchange(ctx, req.ClientID, grant.CodeChallengeMethod)
	}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrTokenType, TokenTypeBearer),
		attribute.Int64(instrumentation.AttrExpiresIn, expiresIn),
	)
	instrumentation.SetSpanSuccess(span)

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   expiresIn,
		ExpiresAt:   expiresAt,
	}, nil
}

// UserInfo verifies a bearer token and returns the identity it was issued for
func (s *Server) UserInfo(ctx context.Context, bearer string) (*directory.Identity, error) {
	ctx, span := s.startSpan(ctx, "server.userinfo")
	defer span.End()

	identityID, ok := s.signer.Verify(bearer)
	if s.metrics != nil {
		s.metrics.RecordTokenVerification(ctx, ok)
	}
	if !ok {
		e := ErrInvalidBearer()
		s.failSpan(span, e)
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventInvalidBearer,
			IPAddress: security.ClientIPFromContext(ctx),
		})
		return nil, e
	}
	instrumentation.AddFlowAttributes(span, "", identityID)

	ident, found := directory.LookupString(s.directory, identityID)
	if !found {
		e := ErrUserInfoNotFound()
		s.failSpan(span, e)
		return nil, e
	}

	instrumentation.SetSpanSuccess(span)
	return &ident, nil
}

// verifyPKCE checks verifier against the stored challenge in constant time
func verifyPKCE(challenge, method, verifier string) bool {
	if verifier == "" {
		return false
	}

	var computed string
	switch method {
	case storage.PKCEMethodPlain:
		computed = verifier
	default:
		computed = oauth2.S256ChallengeFromVerifier(verifier)
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

func (s *Server) codeNotFound(ctx context.Context, span trace.Span, clientID, clientIP string) error {
	e := ErrCodeNotFound()
	s.failSpan(span, e)
	s.Auditor.LogCodeNotFound(clientID, clientIP)
	if s.metrics != nil {
		s.metrics.RecordCodeNotFound(ctx)
	}
	return e
}

// auditValidationFailure records a ClientValidator rejection
func (s *Server) auditValidationFailure(err error, clientID, clientIP, redirectURI string) {
	var e *Error
	if !errors.As(err, &e) {
		return
	}
	if e.Code == ErrorCodeRedirectURIMismatch {
		s.Auditor.LogInvalidRedirect(clientID, clientIP, redirectURI)
		return
	}
	s.Auditor.LogAuthFailure("", clientID, clientIP, e.Code)
}

// backendFailure logs a storage or signing failure and hides it behind a
// server_error
func (s *Server) backendFailure(ctx context.Context, span trace.Span, msg string, err error) error {
	security.LoggerFromContext(ctx, s.Logger).Error(msg, "error", err)
	instrumentation.RecordError(span, err)
	return ErrServerError("The server was unable to complete the request.")
}

func (s *Server) failSpan(span trace.Span, err error) {
	var e *Error
	if errors.As(err, &e) {
		instrumentation.AddErrorAttributes(span, e.Code, e.Description)
		instrumentation.SetSpanError(span, e.Code)
	}
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return s.tracer.Start(ctx, name)
}
