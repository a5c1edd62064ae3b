package auth

import (
	"errors"
	"time"

	"github.com/finbooks/recon-api/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Test credentials
var (
	TestAPIKey    = "test-api-key"
	TestAPISecret = "test-api-secret"
)

// Scopes a token can carry. Ledger scopes gate the bookkeeping surface,
// the reconcile scope gates the engine routes.
const (
	ScopeLedgerRead  = "ledger:read"
	ScopeLedgerWrite = "ledger:write"
	ScopeReconcile   = "reconcile:run"

	issuer   = "recon-api"
	tokenTTL = 24 * time.Hour
)

// Credentials represents the API authentication credentials
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims carries the token identity and the scopes granted to it
type Claims struct {
	jwt.RegisteredClaims
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

// HasScope reports whether the token was granted the given scope
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type client struct {
	secret string
	scopes []string
}

// Service issues and validates the bearer tokens protecting the ledger
// and reconciliation routes
type Service struct {
	jwtSecret []byte
	clients   map[string]client
}

// NewService creates a new authentication service with the given JWT secret
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		clients:   make(map[string]client),
	}
}

// RegisterAPICredentials registers a client with the full set of scopes
func (s *Service) RegisterAPICredentials(apiKey, apiSecret string) {
	s.RegisterClient(apiKey, apiSecret, ScopeLedgerRead, ScopeLedgerWrite, ScopeReconcile)
}

// RegisterClient registers a client granted only the given scopes
func (s *Service) RegisterClient(apiKey, apiSecret string, scopes ...string) {
	s.clients[apiKey] = client{secret: apiSecret, scopes: scopes}
}

// GenerateToken exchanges valid API credentials for a signed JWT carrying
// the client's scopes
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	registered, ok := s.clients[creds.APIKey]
	if !ok || registered.secret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	expiration := now.Add(tokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   creds.APIKey,
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		ClientID: creds.APIKey,
		Scopes:   registered.scopes,
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken verifies the signature, expiration and issuer of a token
// and returns its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if err == ErrInvalidCredentials {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
