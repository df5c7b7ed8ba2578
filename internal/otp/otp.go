// Package otp 签发并校验组织者手机号登录用的一次性验证码。
//
// 验证码只以 bcrypt 哈希形式保存在 Redis 中，依靠键的 TTL 过期，校验成功后立即删除。
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"eventcert/internal/config"
)

var (
	// ErrRateLimited 表示该手机号本小时内请求验证码次数过多。
	ErrRateLimited = errors.New("too many code requests")
	// ErrInvalidCode 表示验证码错误、已过期或已被使用。
	ErrInvalidCode = errors.New("invalid or expired code")
)

const (
	codeKeyPrefix     = "otp:code:"
	rateKeyPrefix     = "otp:rate:"
	attemptsKeyPrefix = "otp:attempts:"
	maxVerifyAttempts = 5
)

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// CodeSender 把验证码送达用户。
type CodeSender interface {
	SendCode(ctx context.Context, mobile, code string) error
}

// LogSender 只把验证码写入日志，短信网关接入前用于开发环境。
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendCode(_ context.Context, mobile, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("otp issued", slog.String("mobile", mobile), slog.String("code", code))
	return nil
}

// Store 管理验证码的生命周期。
type Store struct {
	redis      redisClient
	sender     CodeSender
	ttl        time.Duration
	maxPerHour int
	codeLength int
	cost       int
	logger     *slog.Logger
	now        func() time.Time
	generate   func(length int) (string, error)
}

// NewStore 创建 Store。
func NewStore(client redisClient, sender CodeSender, cfg config.OTPConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxPerHour <= 0 {
		cfg.MaxPerHour = 5
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	return &Store{
		redis:      client,
		sender:     sender,
		ttl:        cfg.TTL,
		maxPerHour: cfg.MaxPerHour,
		codeLength: cfg.CodeLength,
		cost:       bcrypt.DefaultCost,
		logger:     logger,
		now:        time.Now,
		generate:   randomDigits,
	}
}

// Issue 生成新验证码并覆盖之前未使用的验证码。
func (s *Store) Issue(ctx context.Context, mobile string) error {
	mobile = strings.TrimSpace(mobile)
	rateKey := rateKeyPrefix + mobile + ":" + s.now().UTC().Format("2006010215")
	count, err := incrWithTTL(ctx, s.redis, rateKey, time.Hour)
	if err != nil {
		return fmt.Errorf("count otp requests: %w", err)
	}
	if count > int64(s.maxPerHour) {
		return ErrRateLimited
	}

	code, err := s.generate(s.codeLength)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}
	if err := s.redis.Set(ctx, codeKeyPrefix+mobile, string(hash), s.ttl).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	_ = s.redis.Del(ctx, attemptsKeyPrefix+mobile).Err()

	if err := s.sender.SendCode(ctx, mobile, code); err != nil {
		_ = s.redis.Del(ctx, codeKeyPrefix+mobile).Err()
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// Verify 校验验证码，成功后验证码立即失效。连续输错过多次也会使验证码失效。
func (s *Store) Verify(ctx context.Context, mobile, code string) error {
	mobile = strings.TrimSpace(mobile)
	key := codeKeyPrefix + mobile
	hash, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(code))) != nil {
		attempts, err := incrWithTTL(ctx, s.redis, attemptsKeyPrefix+mobile, s.ttl)
		if err == nil && attempts >= maxVerifyAttempts {
			s.logger.Warn("otp locked after repeated failures", slog.String("mobile", mobile))
			_ = s.redis.Del(ctx, key, attemptsKeyPrefix+mobile).Err()
		}
		return ErrInvalidCode
	}

	if err := s.redis.Del(ctx, key, attemptsKeyPrefix+mobile).Err(); err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

type rateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client rateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

func randomDigits(length int) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
