package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	jwtSecret  []byte
	accessTTL  = 30 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

// TokenPair is the session issued after login or account linking.
type TokenPair struct {
	Access         string    `json:"access"`
	Refresh        string    `json:"refresh"`
	AccessExpires  time.Time `json:"access_expires"`
	RefreshExpires time.Time `json:"refresh_expires"`
}

func InitJWT(secret string, access, refresh time.Duration) {
	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	jwtSecret = []byte(secret)
	if access > 0 {
		accessTTL = access
	}
	if refresh > 0 {
		refreshTTL = refresh
	}
}

func GenerateTokenPair(userID int64) (TokenPair, error) {
	now := time.Now()

	access, accessExp, err := signToken(userID, tokenTypeAccess, now, accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := signToken(userID, tokenTypeRefresh, now, refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		Access:         access,
		Refresh:        refresh,
		AccessExpires:  accessExp,
		RefreshExpires: refreshExp,
	}, nil
}

func signToken(userID int64, typ string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"user_id": userID,
		"typ":     typ,
		"exp":     exp.Unix(),
		"iat":     now.Unix(),
		"nbf":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret)
	return signed, exp, err
}

// ParseJWT accepts access tokens only.
func ParseJWT(tokenString string) (int64, error) {
	return parseToken(tokenString, tokenTypeAccess)
}

// ParseRefreshJWT accepts refresh tokens only.
func ParseRefreshJWT(tokenString string) (int64, error) {
	return parseToken(tokenString, tokenTypeRefresh)
}

func parseToken(tokenString, wantType string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})

	if err != nil || !token.Valid {
		return 0, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}

	if typ, _ := claims["typ"].(string); typ != wantType {
		return 0, errors.New("wrong token type")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, errors.New("user_id not found")
	}

	return int64(userID), nil
}
