package main

// auth.go issues and validates the JWT bearer token used to authenticate a
// WebSocket connection, adapted from example/hackernews/auth.go. Unlike the
// teacher's HTTP middleware (which reads the Authorization header before the
// WS upgrade), a graphql-transport-ws client has no standard way to set a
// custom upgrade header from a browser, so the token travels instead as the
// "authorization" key of ConnectionInit's connectionParams and is validated
// from server.Hooks.OnConnect (see main.go).

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	appIssuer = "github.com/riftgql/gqlws/example/chat"
	appSecret = "GraphQL-is-awesome" // TODO get this from a secret store

	userIDClaim = "jti"
	expiryClaim = "exp"
	issuerClaim = "iss"
)

type contextKey string

const userContextKey contextKey = "user"

// issueToken returns a signed JWT asserting userID, valid for 24 hours.
func issueToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIDClaim: userID,
		expiryClaim: time.Now().Add(24 * time.Hour).Unix(),
		issuerClaim: appIssuer,
	})
	return token.SignedString([]byte(appSecret))
}

// authenticate validates tokenString and returns the user ID it asserts.
func authenticate(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(appSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	id, _ := token.Claims.(jwt.MapClaims)[userIDClaim].(string)
	if id == "" {
		return "", fmt.Errorf("token carries no user id")
	}
	return id, nil
}

// userFromContext returns the authenticated user ID stashed on ctx by
// OnConnect, or "" if the connection is anonymous.
func userFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userContextKey).(string)
	return id
}
