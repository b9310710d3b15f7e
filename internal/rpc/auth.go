package rpc

import (
	"net/http"
	"strconv"
	"time"

	"token-ledger/internal/domain"
	"token-ledger/internal/principal"
)

// authenticate returns the verified caller of r, or "" when the request is
// unsigned. A request that carries a principal must be correctly signed.
func (s *Server) authenticate(r *http.Request, body []byte) (domain.Principal, *Error) {
	claimed := r.Header.Get(HeaderPrincipal)
	if claimed == "" {
		return "", nil
	}

	caller, err := principal.Parse(claimed)
	if err != nil {
		return "", errorf(CodeUnauthorized, "invalid principal header: %v", err)
	}

	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return "", errorf(CodeUnauthorized, "invalid timestamp header")
	}
	skew := s.now().Sub(time.UnixMilli(ts))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.cfg.MaxSkew {
		return "", errorf(CodeUnauthorized, "timestamp outside allowed skew of %s", s.cfg.MaxSkew)
	}

	msg := principal.SigningMessage(ts, body)
	if err := principal.Verify(caller, msg, r.Header.Get(HeaderSignature)); err != nil {
		return "", errorf(CodeUnauthorized, "signature rejected: %v", err)
	}
	return caller, nil
}

// Sign sets the authentication headers on req for body.
func Sign(req *http.Request, kp *principal.Keypair, body []byte, now time.Time) {
	ts := now.UnixMilli()
	req.Header.Set(HeaderPrincipal, kp.Principal().String())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, kp.Sign(principal.SigningMessage(ts, body)))
}
