package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store"
)

type (
	registerFunc  func(context.Context, authcore.RegisterRequest) (*store.Identity, error)
	challengeFunc func(context.Context, int64) (*authcore.Challenge, error)
)

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	SessionID        string    `json:"sessionId"`
	IdentityID       int64     `json:"identityId"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func newTokenResponse(p *authcore.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		SessionID:        p.SessionID,
		IdentityID:       p.IdentityID,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

type identityResponse struct {
	ID          int64     `json:"id"`
	ProjectType string    `json:"projectType"`
	Roles       []string  `json:"roles"`
	CreatedAt   time.Time `json:"createdAt"`
}

type challengeResponse struct {
	IdentityID int64     `json:"identityId"`
	Challenge  string    `json:"challenge"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type ticketResponse struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type assertionBody struct {
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJSON"`
	Signature         string `json:"signature"`
}

func (a assertionBody) toAssertion() authcore.PasskeyAssertion {
	return authcore.PasskeyAssertion{
		AuthenticatorData: a.AuthenticatorData,
		ClientDataJSON:    a.ClientDataJSON,
		Signature:         a.Signature,
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrInvalidInput, err)
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	writeJSON(w, status, map[string]string{"error": code})
}

// caller returns the identity bound to the access token that Guard accepted.
func caller(r *http.Request) (*authcore.AuthResult, bool) {
	return middleware.AuthResultFromContext(r.Context())
}

type registerBody struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	Mobile      string `json:"mobile"`
	ProjectType string `json:"projectType"`
}

func (b registerBody) toRequest() authcore.RegisterRequest {
	return authcore.RegisterRequest{
		Username:    b.Username,
		Password:    b.Password,
		Email:       b.Email,
		Mobile:      b.Mobile,
		ProjectType: b.ProjectType,
	}
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	s.registerWith(w, r, s.engine.Register)
}

func (s *Server) adminRegister(w http.ResponseWriter, r *http.Request) {
	s.registerWith(w, r, s.engine.AdminRegister)
}

func (s *Server) registerWith(w http.ResponseWriter, r *http.Request, fn registerFunc) {
	var body registerBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ident, err := fn(r.Context(), body.toRequest())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, identityResponse{
		ID:          ident.ID,
		ProjectType: ident.ProjectType,
		Roles:       ident.Roles,
		CreatedAt:   ident.CreatedAt,
	})
}

func (s *Server) registerCredential(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type         string `json:"type"`
		CredentialID string `json:"credentialId"`
		PublicKey    string `json:"publicKey"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, _ := caller(r)
	if err := s.engine.RegisterCredential(r.Context(), res.IdentityID, store.CredentialType(body.Type), body.CredentialID, body.PublicKey); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) registerPin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PIN            string `json:"pin"`
		DeviceMetadata string `json:"deviceMetadata"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, _ := caller(r)
	if err := s.engine.RegisterPin(r.Context(), res.IdentityID, body.PIN, body.DeviceMetadata); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	res, _ := caller(r)
	if err := s.engine.Logout(r.Context(), res.SessionID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	res, _ := caller(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"identityId": res.IdentityID,
		"sessionId":  res.SessionID,
		"roles":      res.Roles,
		"state":      res.State.String(),
	})
}

func (s *Server) tokens(w http.ResponseWriter, r *http.Request, pair *authcore.TokenPair, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (s *Server) loginPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		DeviceInfo string `json:"deviceInfo"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.engine.LoginWithPassword(r.Context(), body.Username, body.Password, body.DeviceInfo)
	s.tokens(w, r, pair, err)
}

func (s *Server) loginPin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IdentityID int64  `json:"identityId"`
		PIN        string `json:"pin"`
		DeviceInfo string `json:"deviceInfo"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.engine.LoginWithPin(r.Context(), body.IdentityID, body.PIN, body.DeviceInfo)
	s.tokens(w, r, pair, err)
}

func (s *Server) loginOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mobile      string `json:"mobile"`
		Code        string `json:"code"`
		DeviceInfo  string `json:"deviceInfo"`
		ProjectType string `json:"projectType"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.engine.LoginWithOTP(r.Context(), body.Mobile, body.Code, body.DeviceInfo, body.ProjectType)
	s.tokens(w, r, pair, err)
}

type rsaBody struct {
	IdentityID int64  `json:"identityId"`
	Challenge  string `json:"challenge"`
	Signature  string `json:"signature"`
	DeviceInfo string `json:"deviceInfo"`
}

func (s *Server) loginRSA(w http.ResponseWriter, r *http.Request) {
	var body rsaBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.engine.LoginWithRSA(r.Context(), body.IdentityID, body.Challenge, body.Signature, body.DeviceInfo)
	s.tokens(w, r, pair, err)
}

func (s *Server) verifyRSA(w http.ResponseWriter, r *http.Request) {
	var body rsaBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.VerifyRSASignature(r.Context(), body.IdentityID, body.Challenge, body.Signature); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passkeyBody struct {
	IdentityID   int64         `json:"identityId"`
	CredentialID string        `json:"credentialId"`
	Assertion    assertionBody `json:"assertion"`
	DeviceInfo   string        `json:"deviceInfo"`
}

func (s *Server) loginPasskey(w http.ResponseWriter, r *http.Request) {
	var body passkeyBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.engine.LoginWithPasskey(r.Context(), body.IdentityID, body.CredentialID, body.Assertion.toAssertion(), body.DeviceInfo)
	s.tokens(w, r, pair, err)
}

func (s *Server) verifyPasskey(w http.ResponseWriter, r *http.Request) {
	var body passkeyBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.VerifyPasskeyAssertion(r.Context(), body.IdentityID, body.CredentialID, body.Assertion.toAssertion()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rsaChallenge(w http.ResponseWriter, r *http.Request) {
	s.challenge(w, r, s.engine.CreateRSAChallenge)
}

func (s *Server) passkeyChallenge(w http.ResponseWriter, r *http.Request) {
	s.challenge(w, r, s.engine.CreatePasskeyChallenge)
}

func (s *Server) challenge(w http.ResponseWriter, r *http.Request, fn challengeFunc) {
	var body struct {
		IdentityID int64 `json:"identityId"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ch, err := fn(r.Context(), body.IdentityID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{IdentityID: ch.IdentityID, Challenge: ch.Value, ExpiresAt: ch.ExpiresAt})
}

func (s *Server) generateOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contact  string `json:"contact"`
		Purpose  string `json:"purpose"`
		Channel  string `json:"channel"`
		Fallback string `json:"fallback"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req := authcore.OTPRequest{
		Contact:  body.Contact,
		Purpose:  authcore.OTPPurpose(body.Purpose),
		Fallback: body.Fallback,
	}
	if body.Channel != "" {
		ch, ok := notify.ParseChannel(body.Channel)
		if !ok {
			s.fail(w, r, authcore.ErrUnsupportedChannel)
			return
		}
		req.Channel = ch
	}

	dispatch, err := s.engine.GenerateOTP(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"channel":         dispatch.Channel,
		"fallbackChannel": dispatch.FallbackChannel,
		"fallbackFailed":  dispatch.FallbackFailed,
		"expiresAt":       dispatch.ExpiresAt,
	})
}

func (s *Server) validateOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contact string `json:"contact"`
		Code    string `json:"code"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ValidateOTP(r.Context(), body.Contact, body.Code); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.engine.Refresh(r.Context(), body.RefreshToken)
	s.tokens(w, r, pair, err)
}

func (s *Server) ticket(w http.ResponseWriter, r *http.Request, t *authcore.ResetTicket, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticketResponse{Token: t.Token, Type: string(t.Type), ExpiresAt: t.ExpiresAt})
}

func (s *Server) requestPinReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IdentityID int64  `json:"identityId"`
		Mobile     string `json:"mobile"`
		OTP        string `json:"otp"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.engine.RequestPinReset(r.Context(), body.IdentityID, body.Mobile, body.OTP)
	s.ticket(w, r, t, err)
}

func (s *Server) confirmPinReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token          string `json:"token"`
		NewPIN         string `json:"newPin"`
		DeviceMetadata string `json:"deviceMetadata"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ConfirmPinReset(r.Context(), body.Token, body.NewPIN, body.DeviceMetadata); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requestContactChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IdentityID   int64  `json:"identityId"`
		Type         string `json:"type"`
		CurrentValue string `json:"currentValue"`
		OTP          string `json:"otp"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.engine.RequestContactChange(r.Context(), body.IdentityID, store.ResetType(body.Type), body.CurrentValue, body.OTP)
	s.ticket(w, r, t, err)
}

func (s *Server) confirmContactChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		NewValue string `json:"newValue"`
		OTP      string `json:"otp"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ConfirmContactChange(r.Context(), body.Token, body.NewValue, body.OTP); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
