package main

// schema.go wires the chat domain (auth.go, user.go, chat.go) into a
// gqlparserengine.Adapter, grounded on example/hackernews/main.go's pattern
// of registering a handful of top-level query/mutation resolvers against a
// small schema.

import (
	"context"
	"fmt"

	"github.com/riftgql/gqlws/engine/gqlparserengine"
)

const schemaSource = `
type User {
	id: String!
	name: String!
	email: String!
}

type AuthPayload {
	token: String!
	user: User!
}

type ChatMessage {
	from: String!
	text: String!
	sentAt: String!
}

type Query {
	me: User
}

type Mutation {
	signup(email: String!, password: String!, name: String!): AuthPayload!
	login(email: String!, password: String!): AuthPayload!
	postMessage(text: String!): ChatMessage!
}

type Subscription {
	messages: ChatMessage!
}

schema {
	query: Query
	mutation: Mutation
	subscription: Subscription
}
`

func newChatEngine(users *userStore, chatRoom *room) (*gqlparserengine.Adapter, error) {
	queries := map[string]gqlparserengine.Resolver{
		"me": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			id := userFromContext(ctx)
			if id == "" {
				return nil, nil
			}
			u, ok := users.byID(id)
			if !ok {
				return nil, nil
			}
			return u, nil
		},
	}

	mutations := map[string]gqlparserengine.Resolver{
		"signup": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			email, _ := args["email"].(string)
			password, _ := args["password"].(string)
			name, _ := args["name"].(string)
			return users.Signup(email, password, name)
		},
		"login": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			email, _ := args["email"].(string)
			password, _ := args["password"].(string)
			return users.Login(email, password)
		},
		"postMessage": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			id := userFromContext(ctx)
			if id == "" {
				return nil, fmt.Errorf("must be logged in to post a message")
			}
			u, ok := users.byID(id)
			if !ok {
				return nil, fmt.Errorf("unknown user")
			}
			text, _ := args["text"].(string)
			msg := ChatMessage{From: u.Name, Text: text, SentAt: nowRFC3339()}
			chatRoom.post(msg)
			return msg, nil
		},
	}

	subscriptions := map[string]gqlparserengine.SubscriptionResolver{
		"messages": func(ctx context.Context, args map[string]interface{}) (<-chan interface{}, error) {
			sub, unsubscribe := chatRoom.subscribe()
			out := make(chan interface{})
			go func() {
				defer close(out)
				defer unsubscribe()
				for {
					select {
					case msg, ok := <-sub:
						if !ok {
							return
						}
						select {
						case out <- msg:
						case <-ctx.Done():
							return
						}
					case <-ctx.Done():
						return
					}
				}
			}()
			return out, nil
		},
	}

	return gqlparserengine.New(schemaSource, queries, mutations, subscriptions)
}
