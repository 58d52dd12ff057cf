package cookie

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

const minHMACKeySize = 32

// ErrTokenInvalid is returned for any token that fails verification.
var ErrTokenInvalid = errors.New("invalid session cookie")

// Config defines cookie token issuance and the cookie attributes.
type Config struct {
	Name          string
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	Path          string
	Domain        string
	Secure        bool
	HTTPOnly      bool
	SameSite      http.SameSite
}

// Manager signs and parses session cookie tokens.
type Manager struct {
	config Config
}

// Claims is the cookie token payload.
type Claims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("cookie name required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKeySize {
			return nil, fmt.Errorf("hs256 requires a key of at least %d bytes", minHMACKeySize)
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) == 0 {
			priv, _ := parseEdPrivateKey(cfg.PrivateKey)
			cfg.PublicKey = priv.Public().(ed25519.PublicKey)
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// Name returns the cookie name.
func (m *Manager) Name() string {
	return m.config.Name
}

// Issue signs a token for sid that expires after the configured TTL.
func (m *Manager) Issue(sid string) (string, error) {
	if sid == "" {
		return "", errors.New("session id required")
	}
	now := time.Now()
	claims := Claims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	signKey, err := m.getSignKey()
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(m.getMethod(), claims).SignedString(signKey)
}

// Parse verifies token and returns the session ID it carries.
func (m *Manager) Parse(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.getVerifyKey()
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SID == "" {
		return "", ErrTokenInvalid
	}
	return claims.SID, nil
}

// Cookie wraps token in an *http.Cookie with the configured attributes.
func (m *Manager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     m.config.Name,
		Value:    token,
		Path:     m.config.Path,
		Domain:   m.config.Domain,
		MaxAge:   int(m.config.TTL / time.Second),
		Secure:   m.config.Secure,
		HttpOnly: m.config.HTTPOnly,
		SameSite: m.config.SameSite,
	}
}

// Expired returns a cookie that clears the session cookie in the browser.
func (m *Manager) Expired() *http.Cookie {
	c := m.Cookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

// FromRequest returns the raw token from r, or "" when absent.
func (m *Manager) FromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	c, err := r.Cookie(m.config.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) getSignKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) getVerifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
