package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/mmdatafocus/pharmacy_backend/appctx"
)

type JwtCustomClaim struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

func getJwtSecret() []byte {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return []byte("Pharmacy-Secret")
	}
	return []byte(secret)
}

// JwtGenerate signs a token for an actor. Issuance belongs to the auth service; this is used
// by the CLI and tests.
func JwtGenerate(actor appctx.Actor, role string) (string, error) {
	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || tokenLifespan <= 0 {
		tokenLifespan = 24
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:       actor.ID,
		Username: actor.Username,
		Name:     actor.Name,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})

	return t.SignedString(getJwtSecret())
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return getJwtSecret(), nil
	})
}

// ActorFromToken validates the bearer token and builds the typed identity carried by the request.
func ActorFromToken(token string) (appctx.Actor, error) {
	parsed, err := JwtValidate(token)
	if err != nil {
		return appctx.Actor{}, err
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok || !parsed.Valid {
		return appctx.Actor{}, errors.New("invalid token")
	}
	return appctx.Actor{ID: claims.ID, Username: claims.Username, Name: claims.Name}, nil
}
