// Command chatclient is a usage example of the client package against the
// chat server in example/chat: it signs up, opens the messages
// subscription, posts one message, and prints whatever the subscription
// delivers back.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/riftgql/gqlws"
	"github.com/riftgql/gqlws/client"
	"github.com/riftgql/gqlws/message"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/graphql", "chat server URL")
	name := flag.String("name", "ada", "display name to sign up with")
	flag.Parse()

	c := gqlws.NewClient(*url)
	defer c.Close()

	token, err := signup(c, *name)
	if err != nil {
		log.Fatalf("signup: %v", err)
	}

	// Reconnect with the issued token attached, so postMessage/me resolve
	// to the signed-up user.
	c.Close()
	c = gqlws.NewClient(*url, client.ConnectionParams(map[string]interface{}{
		"authorization": token,
	}))
	defer c.Close()

	done := make(chan struct{})
	dispose := c.Subscribe(message.SubscribePayload{
		Query: "subscription { messages { from text sentAt } }",
	}, client.Sink{
		Next: func(r message.ExecutionResult) {
			b, _ := json.Marshal(r.Data.Data)
			fmt.Println("message:", string(b))
		},
		Error: func(err error) {
			log.Printf("subscription error: %v", err)
			close(done)
		},
		Complete: func() { close(done) },
	})
	defer dispose()

	time.Sleep(500 * time.Millisecond) // let the subscription register
	if err := postMessage(c, "hello from chatclient"); err != nil {
		log.Fatalf("postMessage: %v", err)
	}

	<-done
}

func signup(c *client.Client, name string) (string, error) {
	result, err := oneShot(c, message.SubscribePayload{
		Query: `mutation($email: String!, $password: String!, $name: String!) {
			signup(email: $email, password: $password, name: $name) { token }
		}`,
		Variables: map[string]interface{}{
			"email":    name + "@example.com",
			"password": "hunter2",
			"name":     name,
		},
	})
	if err != nil {
		return "", err
	}
	payload, _ := result.Data.Data["signup"].(map[string]interface{})
	token, _ := payload["token"].(string)
	if token == "" {
		return "", fmt.Errorf("signup did not return a token: %v", result.Errors)
	}
	return token, nil
}

func postMessage(c *client.Client, text string) error {
	_, err := oneShot(c, message.SubscribePayload{
		Query:     `mutation($text: String!) { postMessage(text: $text) { from text } }`,
		Variables: map[string]interface{}{"text": text},
	})
	return err
}

// oneShot runs payload as a single query/mutation over the client's
// connection and returns its one result, since graphql-transport-ws speaks
// queries and mutations through the same Subscribe/Next/Complete frames as
// subscriptions.
func oneShot(c *client.Client, payload message.SubscribePayload) (message.ExecutionResult, error) {
	type outcome struct {
		result message.ExecutionResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	dispose := c.Subscribe(payload, client.Sink{
		Next: func(r message.ExecutionResult) {
			resultCh <- outcome{result: r}
		},
		Error: func(err error) {
			resultCh <- outcome{err: err}
		},
		Complete: func() {},
	})
	defer dispose()

	select {
	case o := <-resultCh:
		return o.result, o.err
	case <-time.After(5 * time.Second):
		return message.ExecutionResult{}, context.DeadlineExceeded
	}
}
