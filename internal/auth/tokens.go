package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/kanbanx/kanbanx/internal/apperr"
	"github.com/kanbanx/kanbanx/internal/models"
)

// FingerprintToken returns the hex SHA-256 of a token. The agents
// token_hash column stores this form, never the token itself.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Tokens issues and verifies the two credential shapes: human tokens
// carrying identity+role, and agent tokens carrying identity+role+
// capability set.
type Tokens struct {
	secret   []byte
	humanTTL time.Duration
	agentTTL time.Duration
}

// TokensOpts holds parameters for constructing a Tokens service.
type TokensOpts struct {
	Secret   string
	HumanTTL time.Duration
	AgentTTL time.Duration
}

// NewTokens creates a Tokens service. The secret is required; there is
// no insecure fallback.
func NewTokens(opts TokensOpts) (*Tokens, error) {
	if opts.Secret == "" {
		return nil, fmt.Errorf("auth: JWT secret is required (set KANBANX_JWT_SECRET)")
	}
	if opts.HumanTTL == 0 {
		opts.HumanTTL = 24 * time.Hour
	}
	if opts.AgentTTL == 0 {
		opts.AgentTTL = 7 * 24 * time.Hour
	}
	return &Tokens{
		secret:   []byte(opts.Secret),
		humanTTL: opts.HumanTTL,
		agentTTL: opts.AgentTTL,
	}, nil
}

// HumanClaims is the JWT payload for a human session.
type HumanClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AgentClaims is the JWT payload for an agent credential.
type AgentClaims struct {
	AgentID      string   `json:"agentId"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
	jwt.RegisteredClaims
}

// IssueHuman signs a token for the given user.
func (t *Tokens) IssueHuman(user *models.User) (string, error) {
	now := time.Now()
	claims := HumanClaims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.humanTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign human token: %w", err)
	}
	return signed, nil
}

// IssueAgent signs a token for the given agent, embedding its role and
// capability set.
func (t *Tokens) IssueAgent(agent *models.Agent) (string, error) {
	now := time.Now()
	claims := AgentClaims{
		AgentID:      agent.ID,
		Role:         agent.Role,
		Capabilities: agent.CapabilityList(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.agentTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign agent token: %w", err)
	}
	return signed, nil
}

// VerifyHuman parses and validates a human token.
func (t *Tokens) VerifyHuman(token string) (*HumanClaims, error) {
	var claims HumanClaims
	if err := t.parse(token, &claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, apperr.Authentication("token has no subject")
	}
	return &claims, nil
}

// VerifyAgent parses and validates an agent token.
func (t *Tokens) VerifyAgent(token string) (*AgentClaims, error) {
	var claims AgentClaims
	if err := t.parse(token, &claims); err != nil {
		return nil, err
	}
	if claims.AgentID == "" {
		return nil, apperr.Authentication("token has no agent id")
	}
	return &claims, nil
}

func (t *Tokens) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return apperr.Wrap(apperr.KindAuthentication, err, "invalid token")
	}
	if !parsed.Valid {
		return apperr.Authentication("invalid token")
	}
	return nil
}
