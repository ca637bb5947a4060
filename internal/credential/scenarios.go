package credential

import (
	"time"

	"github.com/mazen160/go-random"
)

const (
	ScenarioWithoutToken   = "slurm-without-token"
	ScenarioInvalidHeaders = "slurm-jwt-invalid-headers"
	ScenarioInvalidToken   = "slurm-jwt-invalid-token"
	ScenarioExpiredToken   = "slurm-jwt-expired-token"

	malformedHeaderToken = "X-SLURM-USER-TOKENS"
	invalidTokenLength   = 32
)

// Scenario is a deliberately rejected credential and the asset name its
// response is captured under.
type Scenario struct {
	Name       string
	Credential Credential
}

// Negative returns the rejected credential variants of the scheduler. Local
// mode has none. The expired token is only produced when the crawler holds
// the signing key.
func Negative(s Settings, now time.Time) ([]Scenario, error) {
	err := s.Validate()
	if err != nil {
		return nil, err
	}
	if s.Mode != ModeJWT {
		return nil, nil
	}

	token, err := s.token(now)
	if err != nil {
		return nil, err
	}
	garbage, err := random.String(invalidTokenLength)
	if err != nil {
		return nil, err
	}

	scenarios := []Scenario{
		{
			Name:       ScenarioWithoutToken,
			Credential: Credential{Header: map[string]string{}},
		},
		{
			Name: ScenarioInvalidHeaders,
			Credential: Credential{Header: map[string]string{
				HeaderUser:           s.User,
				malformedHeaderToken: token,
			}},
		},
		{
			Name: ScenarioInvalidToken,
			Credential: Credential{Header: map[string]string{
				HeaderUser:  s.User,
				HeaderToken: garbage,
			}},
		},
	}

	if s.JWTMode == JWTAuto {
		expired, err := Mint(s.Key, s.User, now, -s.lifespan())
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, Scenario{
			Name: ScenarioExpiredToken,
			Credential: Credential{Header: map[string]string{
				HeaderUser:  s.User,
				HeaderToken: expired,
			}},
		})
	}

	return scenarios, nil
}
