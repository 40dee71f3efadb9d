package main

// chat.go is the chat-room domain logic: a single broadcast room backed by
// a fan-out broker, generalized from the teacher's own subscription
// examples (internal/handler/subscription_test.go's single-subscriber
// `func(ctx context.Context) <-chan string` resolver) to support more than
// one concurrent subscriber.

import (
	"sync"
	"time"
)

// ChatMessage is one posted message.
type ChatMessage struct {
	From   string `json:"from"`
	Text   string `json:"text"`
	SentAt string `json:"sentAt"`
}

// room fans every posted message out to every currently-subscribed channel.
type room struct {
	mu          sync.Mutex
	subscribers map[chan ChatMessage]struct{}
}

func newRoom() *room {
	return &room{subscribers: make(map[chan ChatMessage]struct{})}
}

// subscribe returns a channel that receives every message posted after this
// call, and an unsubscribe func that must be called when the caller is done.
func (r *room) subscribe() (ch chan ChatMessage, unsubscribe func()) {
	ch = make(chan ChatMessage, 8)
	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
}

// post broadcasts msg to every current subscriber. A subscriber too slow to
// keep its buffer drained misses the message rather than blocking the room.
func (r *room) post(msg ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
