package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

const (
	bcryptCost      = 12
	tokenIssuer     = "listas-backoffice"
	accessTokenType = "access"
)

// AuthService issues and validates access tokens for clients.
type AuthService struct {
	clients   port.ClientRepo
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(clients port.ClientRepo, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		clients:   clients,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================
// Login: POST /auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	span.SetAttributes(attribute.String("email", email))
	if email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email e senha são obrigatórios"}
	}

	client, err := s.clients.GetClientByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	if !client.Active {
		s.logger.Warn("login: inactive client", zap.Int64("client_id", client.ID))
		return nil, &domain.ErrUnauthorized{Message: "Conta desativada"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: failed password attempt", zap.Int64("client_id", client.ID))
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}

	token, err := s.signAccessToken(client)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("client logged in",
		zap.Int64("client_id", client.ID),
		zap.String("role", client.Role.String()),
	)
	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		ClientID:    client.ID,
		Username:    client.Username,
		Role:        client.Role,
	}, nil
}

// ============================================================
// ValidateAccessToken: used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Role        domain.Role `json:"role"`
	AffiliateID *int64      `json:"affiliate_id,omitempty"`
	Type        string      `json:"type"`
	jwt.RegisteredClaims
}

// ValidateAccessToken parses a bearer token into the request's caller.
func (s *AuthService) ValidateAccessToken(tokenString string) (domain.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return domain.Caller{}, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return domain.Caller{}, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	if claims.Type != accessTokenType {
		return domain.Caller{}, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 || !claims.Role.Valid() {
		return domain.Caller{}, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	return domain.Caller{ID: id, Role: claims.Role, AffiliateID: claims.AffiliateID}, nil
}

func (s *AuthService) signAccessToken(c *domain.Client) (string, error) {
	now := s.now()
	claims := JWTClaims{
		Role:        c.Role,
		AffiliateID: c.AffiliateID,
		Type:        accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(c.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// HashPassword hashes a plaintext password with the service's bcrypt cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
