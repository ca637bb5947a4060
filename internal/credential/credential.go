package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Mode string

const (
	// ModeLocal authenticates through the identity of the process talking
	// to the scheduler unix socket, there are no headers to forge.
	ModeLocal Mode = "local"
	ModeJWT   Mode = "jwt"
)

type JWTMode string

const (
	// JWTAuto means the crawler holds the signing key and mints tokens.
	JWTAuto   JWTMode = "auto"
	JWTStatic JWTMode = "static"
)

const (
	HeaderUser  = "X-SLURM-USER-NAME"
	HeaderToken = "X-SLURM-USER-TOKEN"

	DefaultLifespan = time.Hour
)

var ErrInvalidSettings = fmt.Errorf("invalid scheduler authentication settings")

type Settings struct {
	Mode        Mode
	JWTMode     JWTMode
	User        string
	Key         []byte
	StaticToken string
	Lifespan    time.Duration
}

func (s Settings) Validate() error {
	switch s.Mode {
	case ModeLocal:
		return nil
	case ModeJWT:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s.Mode)
	}
	if s.User == "" {
		return fmt.Errorf("%w: jwt mode requires a user", ErrInvalidSettings)
	}
	switch s.JWTMode {
	case JWTAuto:
		if len(s.Key) == 0 {
			return fmt.Errorf("%w: auto jwt mode requires a signing key", ErrInvalidSettings)
		}
	case JWTStatic:
		if s.StaticToken == "" {
			return fmt.Errorf("%w: static jwt mode requires a token", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown jwt mode %q", ErrInvalidSettings, s.JWTMode)
	}
	return nil
}

func (s Settings) lifespan() time.Duration {
	if s.Lifespan <= 0 {
		return DefaultLifespan
	}
	return s.Lifespan
}

// Credential is the set of headers authenticating a request.
type Credential struct {
	Header map[string]string
}

// Bearer is the credential issued by the dashboard gateway.
func Bearer(token string) Credential {
	return Credential{Header: map[string]string{
		"Authorization": "Bearer " + token,
	}}
}

// Mint signs an HS256 token for user valid for lifespan, a negative lifespan
// yields a token that is already expired.
func Mint(key []byte, user string, now time.Time, lifespan time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(lifespan).Unix(),
		"sun": user,
	})
	return token.SignedString(key)
}

func (s Settings) token(now time.Time) (string, error) {
	if s.JWTMode == JWTStatic {
		return s.StaticToken, nil
	}
	return Mint(s.Key, s.User, now, s.lifespan())
}

// Valid returns the credential accepted by the scheduler.
func Valid(s Settings, now time.Time) (Credential, error) {
	err := s.Validate()
	if err != nil {
		return Credential{}, err
	}
	if s.Mode == ModeLocal {
		return Credential{Header: map[string]string{}}, nil
	}
	token, err := s.token(now)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Header: map[string]string{
		HeaderUser:  s.User,
		HeaderToken: token,
	}}, nil
}
