package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ClientConfig tunes the NATS-backed feed connection.
type ClientConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Client is the NATS-backed Feed. One subject per session carries all
// three tables; core NATS (not JetStream) because the contract is
// at-least-once with no replay; the post-reconnect snapshot re-fetch
// closes the missed-event window.
type Client struct {
	nc *nats.Conn

	mu      sync.Mutex
	resyncs map[*natsSub]func()
}

func Dial(cfg ClientConfig) (*Client, error) {
	client := &Client{resyncs: make(map[*natsSub]func())}
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("feed disconnected error=%v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("feed reconnected url=%s", nc.ConnectedUrl())
			client.notifyResync()
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Printf("feed error=%v", err)
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	client.nc = nc
	return client, nil
}

func (c *Client) notifyResync() {
	c.mu.Lock()
	resyncs := make([]func(), 0, len(c.resyncs))
	for _, resync := range c.resyncs {
		if resync != nil {
			resyncs = append(resyncs, resync)
		}
	}
	c.mu.Unlock()
	for _, resync := range resyncs {
		resync()
	}
}

func subjectFor(sessionID string) string {
	return "game.session." + sessionID
}

func (c *Client) Publish(event Event) error {
	if event.SessionID == "" {
		return errors.New("event has no session id")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}
	return c.nc.Publish(subjectFor(event.SessionID), data)
}

type natsSub struct {
	client *Client
	sub    *nats.Subscription
	once   sync.Once
}

func (c *Client) Subscribe(sessionID string, handler Handler, resync func()) (Subscription, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	wrapper := &natsSub{client: c}
	sub, err := c.nc.Subscribe(subjectFor(sessionID), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("feed payload malformed session_id=%s error=%v", sessionID, err)
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe session %s: %w", sessionID, err)
	}
	wrapper.sub = sub
	c.mu.Lock()
	c.resyncs[wrapper] = resync
	c.mu.Unlock()
	return wrapper, nil
}

func (s *natsSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.client.mu.Lock()
		delete(s.client.resyncs, s)
		s.client.mu.Unlock()
		err = s.sub.Unsubscribe()
	})
	return err
}

func (c *Client) Close() {
	c.nc.Close()
}
