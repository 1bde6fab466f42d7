package stream

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans snapshot payloads out to websocket clients grouped by topic.
// With redis configured, every replica publishes to the topic channel and
// delivers only what comes back from the subscription.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	last    map[string][]byte
	mu      sync.Mutex

	pubsub *redis.PubSub
	done   chan struct{}
}

type Client struct {
	Topic string
	Send  chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		clients: map[string]map[*Client]struct{}{},
		last:    map[string][]byte{},
	}
	if redisClient == nil {
		return h
	}

	ctx := context.Background()
	pubsub := redisClient.PSubscribe(ctx, redisPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe error, falling back to local delivery: %v", err)
		_ = pubsub.Close()
		return h
	}

	h.redis = redisClient
	h.pubsub = pubsub
	h.done = make(chan struct{})
	go h.subscribeRedis()
	return h
}

// Register adds a client and queues the latest payload seen on its topic.
func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	if payload, ok := h.last[topic]; ok {
		client.Send <- payload
	}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topicClients, ok := h.clients[client.Topic]; ok {
		if _, ok := topicClients[client]; !ok {
			return
		}
		delete(topicClients, client)
		if len(topicClients) == 0 {
			delete(h.clients, client.Topic)
		}
		close(client.Send)
	}
}

func (h *Hub) Broadcast(topic string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(topic), payload).Err()
		if err == nil {
			return
		}
		log.Printf("redis publish error: %v", err)
	}
	h.deliver(topic, payload)
}

func (h *Hub) Close() {
	if h.pubsub == nil {
		return
	}
	_ = h.pubsub.Close()
	<-h.done
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last[topic] = payload
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
			// slow consumer, drop
		}
	}
}

func (h *Hub) subscribeRedis() {
	defer close(h.done)

	for msg := range h.pubsub.Channel() {
		topic := topicFromChannel(msg.Channel)
		if topic == "" {
			continue
		}
		h.deliver(topic, []byte(msg.Payload))
	}
}

const (
	channelPrefix = "trip:"
	channelSuffix = ":snapshot"
	redisPattern  = channelPrefix + "*" + channelSuffix
)

func redisChannel(topic string) string {
	return channelPrefix + topic + channelSuffix
}

func topicFromChannel(ch string) string {
	// trip:{topic}:snapshot
	if len(ch) <= len(channelPrefix)+len(channelSuffix) ||
		!strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
