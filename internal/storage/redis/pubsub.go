package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otpmail/backend/internal/domain"
)

// 多实例部署时所有实例共享的新邮件广播频道。
const newMessageChannel = "otpmail:new_message"

// envelope 是通过 Redis 频道传递的新邮件载荷。
type envelope struct {
	EmailAddress string          `json:"emailAddress"`
	Message      *domain.Message `json:"message"`
}

// PubSub 通过 Redis Pub/Sub 在多个实例之间转发新邮件事件。
type PubSub struct {
	rdb *goredis.Client
	log *zap.Logger
}

// Options 配置 Redis 连接参数。
type Options struct {
	Address  string
	Password string
	DB       int
}

// NewPubSub 创建 Redis 中继并验证连通性。
func NewPubSub(opts Options, log *zap.Logger) (*PubSub, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("connected to Redis",
		zap.String("address", opts.Address),
		zap.Int("db", opts.DB),
	)

	return &PubSub{rdb: rdb, log: log}, nil
}

// NotifyNewMessage 把新邮件事件发布到共享频道。
func (p *PubSub) NotifyNewMessage(address string, msg *domain.Message) {
	payload, err := json.Marshal(envelope{EmailAddress: address, Message: msg})
	if err != nil {
		p.log.Error("failed to marshal new message envelope", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := p.rdb.Publish(ctx, newMessageChannel, payload).Err(); err != nil {
		p.log.Error("failed to publish new message event",
			zap.String("address", address),
			zap.Error(err),
		)
	}
}

// Run 订阅共享频道并把收到的事件交给 notify 回调，直到 ctx 取消。
func (p *PubSub) Run(ctx context.Context, notify func(address string, msg *domain.Message)) error {
	sub := p.rdb.Subscribe(ctx, newMessageChannel)
	defer sub.Close()

	// 确认订阅建立后再进入接收循环
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", newMessageChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(raw.Payload), &env); err != nil {
				p.log.Warn("ignoring malformed pubsub payload", zap.Error(err))
				continue
			}
			if env.Message == nil || env.EmailAddress == "" {
				continue
			}
			notify(env.EmailAddress, env.Message)
		}
	}
}

// Ping 检查 Redis 连通性。
func (p *PubSub) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close 关闭 Redis 连接。
func (p *PubSub) Close() error {
	if err := p.rdb.Close(); err != nil {
		p.log.Error("failed to close Redis connection", zap.Error(err))
		return err
	}
	p.log.Info("Redis connection closed")
	return nil
}
