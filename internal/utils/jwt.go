package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Actor roles carried in access tokens.
const (
	RoleAdmin    = "admin"
	RoleStore    = "store"
	RoleCustomer = "customer"
)

// TokenClaims is the verified identity of the caller.
type TokenClaims struct {
	UserID  uuid.UUID
	Role    string
	StoreID *uuid.UUID
}

type jwtCustomClaims struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	StoreID string `json:"store_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the provided identity.
func GenerateToken(secret string, identity TokenClaims, ttl time.Duration) (string, error) {
	claims := &jwtCustomClaims{
		UserID: identity.UserID.String(),
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if identity.StoreID != nil {
		claims.StoreID = identity.StoreID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns the embedded identity.
func ParseToken(secret, tokenString string) (TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return TokenClaims{}, err
	}

	claims, ok := token.Claims.(*jwtCustomClaims)
	if !ok || !token.Valid {
		return TokenClaims{}, jwt.ErrTokenInvalidClaims
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return TokenClaims{}, jwt.ErrTokenInvalidClaims
	}

	identity := TokenClaims{UserID: userID, Role: claims.Role}
	switch claims.Role {
	case RoleAdmin, RoleCustomer:
	case RoleStore:
		storeID, err := uuid.Parse(claims.StoreID)
		if err != nil {
			return TokenClaims{}, errors.New("store token without store_id")
		}
		identity.StoreID = &storeID
	default:
		return TokenClaims{}, jwt.ErrTokenInvalidClaims
	}

	return identity, nil
}
