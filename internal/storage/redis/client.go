package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopdesk/supportchat/internal/model"
)

const keyPrefix = "chat:"

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// NewFromClient оборачивает готовый клиент (его закроет Close).
func NewFromClient(cli *redis.Client) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// CheckRateLimit — фиксированное окно: INCR chat:rl:{key}, TTL ставится на первом запросе окна.
func (c *Client) CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	k := keyPrefix + "rl:" + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	if n == 1 {
		c.cli.Expire(ctx, k, window)
	}
	return n <= int64(max), nil
}

func onlineKey(kind model.PrincipalKind) string {
	return keyPrefix + "online:" + string(kind)
}

// SetOnline ведёт хеш chat:online:{kind} -> {id: unix time подключения}.
func (c *Client) SetOnline(ctx context.Context, kind model.PrincipalKind, id int64, online bool) error {
	field := strconv.FormatInt(id, 10)
	if online {
		return c.cli.HSet(ctx, onlineKey(kind), field, time.Now().Unix()).Err()
	}
	return c.cli.HDel(ctx, onlineKey(kind), field).Err()
}

func (c *Client) OnlineCount(ctx context.Context, kind model.PrincipalKind) (int, error) {
	n, err := c.cli.HLen(ctx, onlineKey(kind)).Result()
	return int(n), err
}

func pushKey(staffID int64) string {
	return keyPrefix + "push:" + strconv.FormatInt(staffID, 10)
}

// AddPushSubscription хранит подписки в хеше endpoint -> JSON, повторная подписка перезаписывает ключи.
func (c *Client) AddPushSubscription(ctx context.Context, staffID int64, sub model.PushSubscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return c.cli.HSet(ctx, pushKey(staffID), sub.Endpoint, raw).Err()
}

func (c *Client) RemovePushSubscription(ctx context.Context, staffID int64, endpoint string) error {
	return c.cli.HDel(ctx, pushKey(staffID), endpoint).Err()
}

func (c *Client) PushSubscriptions(ctx context.Context, staffID int64) ([]model.PushSubscription, error) {
	vals, err := c.cli.HVals(ctx, pushKey(staffID)).Result()
	if err != nil {
		return nil, err
	}
	subs := make([]model.PushSubscription, 0, len(vals))
	for _, v := range vals {
		var s model.PushSubscription
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			continue
		}
		subs = append(subs, s)
	}
	return subs, nil
}

// ResetPresence очищает зеркало присутствия при старте: после рестарта процесса живых соединений нет.
func (c *Client) ResetPresence(ctx context.Context) error {
	return c.cli.Del(ctx, onlineKey(model.KindCustomer), onlineKey(model.KindStaff)).Err()
}
