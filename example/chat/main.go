// Command chat is a minimal graphql-transport-ws chat server: signup/login
// issue a bearer token (auth.go), and an authenticated connection can post
// to and subscribe to a single broadcast room (chat.go). It is adapted from
// example/hackernews/main.go, replacing the teacher's plain-HTTP handler
// and auth middleware with gqlws.NewServerWithHooks and a
// connectionParams-based OnConnect hook, since authentication now happens
// once per WebSocket connection instead of per HTTP request.
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/riftgql/gqlws"
	"github.com/riftgql/gqlws/server"
)

func main() {
	users := newUserStore()
	chatRoom := newRoom()

	eng, err := newChatEngine(users, chatRoom)
	if err != nil {
		log.Fatalf("building chat schema: %v", err)
	}

	hooks := server.Hooks{
		OnConnect: func(ctx context.Context, connectionParams map[string]interface{}) (server.ConnectResult, error) {
			authHeader, _ := connectionParams["authorization"].(string)
			if authHeader == "" {
				// Anonymous connections are allowed; me/postMessage simply
				// behave as logged-out.
				return server.ConnectResult{Accept: true}, nil
			}
			id, err := authenticate(authHeader)
			if err != nil {
				return server.ConnectResult{Accept: false}, err
			}
			return server.ConnectResult{
				Accept:  true,
				Context: context.WithValue(ctx, userContextKey, id),
			}, nil
		},
	}

	http.Handle("/graphql", gqlws.NewServerWithHooks(eng, hooks))
	log.Print("chat server listening on :8080/graphql")
	log.Fatal(http.ListenAndServe(":8080", nil))
}
