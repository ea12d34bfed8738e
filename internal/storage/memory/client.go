package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopdesk/supportchat/internal/model"
)

type presenceKey struct {
	kind model.PrincipalKind
	id   int64
}

type Client struct {
	mu     sync.RWMutex
	limit  map[string][]time.Time
	online map[presenceKey]time.Time
	push   map[int64]map[string]model.PushSubscription
	now    func() time.Time
}

func New() *Client {
	return &Client{
		limit:  make(map[string][]time.Time),
		online: make(map[presenceKey]time.Time),
		push:   make(map[int64]map[string]model.PushSubscription),
		now:    time.Now,
	}
}

func (c *Client) Close() error { return nil }

// CheckRateLimit — скользящее окно по меткам времени.
func (c *Client) CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	cut := now.Add(-window)
	var kept []time.Time
	for _, t := range c.limit[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= max {
		c.limit[key] = kept
		return false, nil
	}
	c.limit[key] = append(kept, now)
	return true, nil
}

func (c *Client) SetOnline(ctx context.Context, kind model.PrincipalKind, id int64, online bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := presenceKey{kind: kind, id: id}
	if online {
		c.online[k] = c.now()
	} else {
		delete(c.online, k)
	}
	return nil
}

func (c *Client) OnlineCount(ctx context.Context, kind model.PrincipalKind) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for k := range c.online {
		if k.kind == kind {
			n++
		}
	}
	return n, nil
}

func (c *Client) AddPushSubscription(ctx context.Context, staffID int64, sub model.PushSubscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.push[staffID]
	if !ok {
		subs = make(map[string]model.PushSubscription)
		c.push[staffID] = subs
	}
	subs[sub.Endpoint] = sub
	return nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, staffID int64, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.push[staffID], endpoint)
	return nil
}

func (c *Client) PushSubscriptions(ctx context.Context, staffID int64) ([]model.PushSubscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.PushSubscription, 0, len(c.push[staffID]))
	for _, s := range c.push[staffID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}
