package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CredentialRefresher 凭据刷新能力，由宿主提供（如交互式重新选择密钥）
type CredentialRefresher interface {
	Refresh(ctx context.Context) error
}

// CredentialRefresherFunc 函数适配器
type CredentialRefresherFunc func(ctx context.Context) error

func (f CredentialRefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts      int
	InitialBackoff   time.Duration // 限流退避基数，第 i 次失败等待 InitialBackoff * 2^i
	TransientDelay   time.Duration // 其他错误的固定等待
	AttemptTimeout   time.Duration // 单次调用超时，0 表示不限
	MaxAuthRefreshes int           // 单次操作内最多刷新凭据次数
}

// DefaultRetryConfig 默认配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:      4,
		InitialBackoff:   2 * time.Second,
		TransientDelay:   time.Second,
		AttemptTimeout:   90 * time.Second,
		MaxAuthRefreshes: 2,
	}
}

// RetryPolicy 有界重试：限流指数退避、凭据失效时刷新后立即重试
// 只负责分类错误和安排尝试，不关心包装的是什么操作
type RetryPolicy struct {
	cfg       RetryConfig
	refresher CredentialRefresher
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy 创建重试策略，refresher 可为 nil
func NewRetryPolicy(cfg *RetryConfig, refresher CredentialRefresher) *RetryPolicy {
	c := DefaultRetryConfig()
	if cfg != nil {
		if cfg.MaxAttempts > 0 {
			c.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.InitialBackoff > 0 {
			c.InitialBackoff = cfg.InitialBackoff
		}
		if cfg.TransientDelay > 0 {
			c.TransientDelay = cfg.TransientDelay
		}
		if cfg.AttemptTimeout >= 0 {
			c.AttemptTimeout = cfg.AttemptTimeout
		}
		if cfg.MaxAuthRefreshes > 0 {
			c.MaxAuthRefreshes = cfg.MaxAuthRefreshes
		}
	}
	return &RetryPolicy{cfg: c, refresher: refresher, sleep: sleepCtx}
}

// SetRefresher 设置凭据刷新能力（可选）
func (p *RetryPolicy) SetRefresher(r CredentialRefresher) {
	p.refresher = r
}

// Config 返回生效的配置
func (p *RetryPolicy) Config() RetryConfig {
	return p.cfg
}

// Do 执行 attempt，失败时按分类决定等待与重试
func (p *RetryPolicy) Do(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	var lastErr error
	refreshes := 0

	for i := 0; i < p.cfg.MaxAttempts; {
		err := p.runAttempt(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s 已取消: %w", op, errors.Join(ctxErr, err))
		}

		class := Classify(err)
		if class == ClassAuthExpired {
			if p.refresher == nil {
				return fmt.Errorf("%w: %w", ErrAuthExpired, err)
			}
			if refreshes >= p.cfg.MaxAuthRefreshes {
				return fmt.Errorf("%w: 已刷新凭据 %d 次仍失败: %w", ErrAuthExpired, refreshes, err)
			}
			refreshes++
			slog.Warn("API 密钥失效，刷新凭据后重试", "op", op, "refresh", refreshes)
			if rerr := p.refresher.Refresh(ctx); rerr != nil {
				return fmt.Errorf("%w: 刷新凭据失败: %w", ErrAuthExpired, rerr)
			}
			// 刷新后立即重试，不计入尝试次数
			continue
		}

		if i == p.cfg.MaxAttempts-1 {
			break
		}

		delay := p.cfg.TransientDelay
		if class == ClassRateLimited {
			delay = p.cfg.InitialBackoff << uint(i)
		}
		slog.Warn("AI 调用失败，准备重试", "op", op, "attempt", i+1, "class", class.String(), "backoff", delay, "error", err)
		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s 已取消: %w", op, err)
		}
		i++
	}

	if Classify(lastErr) == ClassRateLimited && !errors.Is(lastErr, ErrRateLimited) {
		return fmt.Errorf("%w: 达到最大重试次数 (%d): %w", ErrRateLimited, p.cfg.MaxAttempts, lastErr)
	}
	return fmt.Errorf("达到最大重试次数 (%d): %w", p.cfg.MaxAttempts, lastErr)
}

func (p *RetryPolicy) runAttempt(ctx context.Context, attempt func(ctx context.Context) error) error {
	if p.cfg.AttemptTimeout <= 0 {
		return attempt(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()
	return attempt(actx)
}

// Retry 带返回值的 Do
func Retry[T any](ctx context.Context, p *RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
