package auth

import (
	"context"
	"strings"
	"time"

	"ChatRelay/logger"
	"ChatRelay/service/store"
	"ChatRelay/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// AuthResult is the verified identity behind a bearer token. Produced
// once per auth attempt; the verifier never retries internally.
type AuthResult struct {
	Valid       bool
	UserID      string
	DisplayName string
	Email       string
}

// Verifier validates an opaque bearer credential against the identity
// provider. Expired, malformed, and revoked tokens fail, as does provider
// unavailability; retry policy, if any, belongs to the caller.
type Verifier interface {
	Verify(ctx context.Context, token string) (*AuthResult, error)
}

// UserDirectory resolves a verified uid to its stored profile. Optional:
// a nil directory skips profile enrichment.
type UserDirectory interface {
	Lookup(ctx context.Context, uid string) (*store.UserProfile, error)
}

// Options controls signing and TTL.
type Options struct {
	Secret []byte        // HMAC key
	Alg    string        // HS256/HS384/HS512 (default HS256)
	TTL    time.Duration // token lifetime for Issue (default 2h)
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

// JWTVerifier verifies HMAC-signed bearer tokens carrying sub/name/email
// claims, enriching the result from the user directory when claims omit
// the profile fields.
type JWTVerifier struct {
	opts  Options
	users UserDirectory
}

func NewJWTVerifier(opts Options, users UserDirectory) *JWTVerifier {
	return &JWTVerifier{opts: opts, users: users}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*AuthResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errs.ErrAuth.WrapMsg("empty token")
	}

	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errs.ErrAuth.WrapMsg("unexpected alg", "alg", t.Header["alg"])
		}
		return v.opts.Secret, nil
	})
	if err != nil {
		return nil, errs.ErrAuth.WrapMsg("parse token", "err", err)
	}
	if !parsed.Valid {
		return nil, errs.ErrAuth.Wrap()
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errs.ErrAuth.WrapMsg("claims type mismatch")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errs.ErrAuth.WrapMsg("missing sub claim")
	}

	res := &AuthResult{Valid: true, UserID: sub}
	if name, _ := claims["name"].(string); name != "" {
		res.DisplayName = name
	}
	if email, _ := claims["email"].(string); email != "" {
		res.Email = email
	}

	if v.users != nil && (res.DisplayName == "" || res.Email == "") {
		if p, lerr := v.users.Lookup(ctx, sub); lerr == nil {
			if res.DisplayName == "" {
				res.DisplayName = p.DisplayName
			}
			if res.Email == "" {
				res.Email = p.Email
			}
		} else {
			// profile enrichment is best-effort
			logger.Debugf("[auth] profile lookup uid=%s: %v", sub, lerr)
		}
	}
	if res.DisplayName == "" {
		res.DisplayName = sub
	}
	return res, nil
}

// Issue signs a token for the given identity. Used by provisioning
// tooling and tests.
func Issue(opts Options, userID, name, email string) (string, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", err
	}
	if opts.TTL == 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()

	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(opts.TTL).Unix(),
	}
	if name != "" {
		claims["name"] = name
	}
	if email != "" {
		claims["email"] = email
	}

	return jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, errs.ErrAuth.WrapMsg("unsupported alg", "alg", alg)
	}
}
