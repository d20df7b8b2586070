package ws

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNonceMismatch = errors.New("nonce mismatch")
	ErrBadToken      = errors.New("invalid token")
)

type ConnectParams struct {
	Client *ConnectClient `json:"client"`
	Auth   *ConnectAuth   `json:"auth"`
	Nonce  string         `json:"nonce"`
}

type ConnectClient struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Version     string `json:"version"`
}

type ConnectAuth struct {
	Token string `json:"token"`
}

// VerifyConnect checks the connect request against the challenge nonce and,
// when token is non-empty, the shared API token. It returns the name the
// caller should be logged under.
func VerifyConnect(paramsRaw json.RawMessage, challengeNonce, token string) (name string, err error) {
	var params ConnectParams
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &params); err != nil {
			return "", fmt.Errorf("invalid connect params: %w", err)
		}
	}

	if params.Nonce != challengeNonce {
		return "", ErrNonceMismatch
	}

	if token != "" {
		given := ""
		if params.Auth != nil {
			given = params.Auth.Token
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			return "", ErrBadToken
		}
	}

	return safeClientName(params.Client), nil
}

func safeClientName(c *ConnectClient) string {
	if c == nil {
		return "unknown"
	}
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if c.ID != "" {
		return c.ID
	}
	return "unknown"
}
