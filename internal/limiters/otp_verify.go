// Package limiters holds Redis-backed fixed-window counters
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPVerifyRateLimited      = errors.New("otp verification rate limited")
	ErrOTPVerifyRedisUnavailable = errors.New("otp verification redis unavailable")
)

type OTPVerifyConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// OTPVerifyLimiter caps code submissions per account and purpose within a
// fixed window. A code is six digits, so without a cap it could be guessed
// within its lifetime.
type OTPVerifyLimiter struct {
	redis  redis.UniversalClient
	config OTPVerifyConfig
}

func NewOTPVerifyLimiter(redisClient redis.UniversalClient, cfg OTPVerifyConfig) *OTPVerifyLimiter {
	return &OTPVerifyLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check counts one attempt and fails once the window holds more than MaxAttempts
func (l *OTPVerifyLimiter) Check(ctx context.Context, accountID, purpose string) error {
	key := verifyKey(accountID, purpose)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPVerifyRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrOTPVerifyRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrOTPVerifyRateLimited
	}

	return nil
}

// Reset clears the counter after a successful verification
func (l *OTPVerifyLimiter) Reset(ctx context.Context, accountID, purpose string) error {
	if err := l.redis.Del(ctx, verifyKey(accountID, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPVerifyRedisUnavailable, err)
	}
	return nil
}

func verifyKey(accountID, purpose string) string {
	return "otpv:" + purpose + ":" + accountID
}
