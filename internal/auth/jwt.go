// Package auth issues session tokens and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// defaultKid names the key when the manager is built from a single secret.
const defaultKid = "default"

// JWTManager signs and validates the session tokens handed out on
// register and login.
type JWTManager struct {
	keys      map[string]string // kid -> HMAC secret; every key still verifies
	activeKid string            // kid used to sign new tokens
	duration  time.Duration     // How long tokens are valid; zero means no expiry
}

// Claims is the custom JWT payload (user id + session id). A token is only
// honoured while its session id is still listed on the user.
type Claims struct {
	UserID               int `json:"auth_user_id"`
	SessionID            int `json:"session_id"`
	jwt.RegisteredClaims     // Includes ExpiresAt, IssuedAt, etc.
}

// NewJWTManager returns a JWTManager with a single signing secret.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return NewJWTManagerFromKeys(map[string]string{defaultKid: secretKey}, defaultKid, duration)
}

// NewJWTManagerFromKeys returns a JWTManager able to verify tokens signed by
// any of keys and signing new ones with activeKid. Rotating a key means
// adding the new one, switching activeKid, and dropping the old key once its
// tokens have expired.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	cp := make(map[string]string, len(keys))
	for k, v := range keys {
		cp[k] = v
	}
	return &JWTManager{keys: cp, activeKid: activeKid, duration: duration}
}

// ParseKeys parses "kid:secret,kid2:secret2" into a key map.
func ParseKeys(s string) (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kid, secret, ok := strings.Cut(p, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid key entry %q", p)
		}
		keys[kid] = secret
	}
	if len(keys) == 0 {
		return nil, errors.New("no keys configured")
	}
	return keys, nil
}

// GenerateToken issues a signed token for one session of a user.
func (m *JWTManager) GenerateToken(userID, sessionID int) (string, error) {
	secret, ok := m.keys[m.activeKid]
	if !ok {
		return "", fmt.Errorf("active key %q not configured", m.activeKid)
	}

	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now), // Set creation time
		},
	}
	if m.duration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.duration))
	}

	// Create new token with HS256 signing method (HMAC with SHA-256)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	// kid tells VerifyToken which secret to check against
	token.Header["kid"] = m.activeKid

	return token.SignedString([]byte(secret))
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Security check: ensure token was signed with HMAC (not asymmetric key)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		// Tokens without a kid predate rotation and use the active key
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			kid = m.activeKid
		}
		secret, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	// Verify token is actually valid (checks signature and expiration)
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash for the provided plaintext.
func HashPassword(password string) (string, error) {
	// GenerateFromPassword creates a bcrypt hash with default cost (10 rounds)
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(hash, password string) error {
	// CompareHashAndPassword returns nil if password matches hash, error otherwise
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
