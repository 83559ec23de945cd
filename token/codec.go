// Package token mints and resolves the opaque completion tokens embedded
// in shareable task-completion links. Possession of a token is the only
// credential on the completion path, so the token itself carries the
// security properties: an HMAC signature prevents forgery and a random
// nonce makes every minted token unique for all time.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned by Resolve for anything that does not
// verify: malformed input, truncated tokens, bad signatures, missing
// claims. Callers treat it as "this link does nothing".
var ErrInvalidToken = errors.New("invalid completion token")

const nonceBytes = 16

// Codec signs and verifies completion tokens with a shared secret.
type Codec struct {
	secret []byte
	parser *jwt.Parser
}

type completionClaims struct {
	Profile string `json:"profile"`
	TaskID  string `json:"task"`
	Nonce   string `json:"nonce"`
	jwt.RegisteredClaims
}

// New creates a Codec. The secret must be non-empty; losing or rotating
// it invalidates every outstanding completion link.
func New(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	return &Codec{
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Mint issues a token bound to the given task and profile. Tokens carry
// no expiry: they stay valid until the task is deleted.
func (c *Codec) Mint(taskID, profileName string) (string, error) {
	if taskID == "" || profileName == "" {
		return "", errors.New("token: task id and profile name are required")
	}
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("token: nonce: %w", err)
	}
	claims := completionClaims{
		Profile: profileName,
		TaskID:  taskID,
		Nonce:   hex.EncodeToString(nonce),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Resolve maps a token back to the profile and task it was minted for.
// It fails closed: every problem collapses into ErrInvalidToken.
func (c *Codec) Resolve(tok string) (profileName, taskID string, err error) {
	if tok == "" {
		return "", "", ErrInvalidToken
	}
	claims := &completionClaims{}
	parsed, err := c.parser.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.Profile == "" || claims.TaskID == "" || claims.Nonce == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Profile, claims.TaskID, nil
}
