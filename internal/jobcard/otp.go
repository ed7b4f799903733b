package jobcard

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultOTPLength is the number of digits in a delivery OTP.
const DefaultOTPLength = 6

// GenerateOTP returns a random numeric code of the given length, zero
// padded, from crypto/rand.
func GenerateOTP(length int) (string, error) {
	if length <= 0 {
		length = DefaultOTPLength
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// OTPLimiter bounds verification attempts per job within a sliding
// window, backed by redis so the bound holds across processes.
type OTPLimiter struct {
	rdb         *redis.Client
	maxAttempts int64
	window      time.Duration
}

func NewOTPLimiter(rdb *redis.Client, maxAttempts int64, window time.Duration) *OTPLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &OTPLimiter{rdb: rdb, maxAttempts: maxAttempts, window: window}
}

func otpAttemptKey(jobID uuid.UUID) string {
	return "otp_attempts:" + jobID.String()
}

// Allow counts one attempt and returns ErrOTPAttemptsExceeded once the
// window budget is spent.
func (l *OTPLimiter) Allow(ctx context.Context, jobID uuid.UUID) error {
	key := otpAttemptKey(jobID)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("otp limiter incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("otp limiter expire: %w", err)
		}
	}
	if n > l.maxAttempts {
		return ErrOTPAttemptsExceeded
	}
	return nil
}

// Reset clears the attempt counter, used after a successful verification
// or when a new OTP is issued.
func (l *OTPLimiter) Reset(ctx context.Context, jobID uuid.UUID) error {
	return l.rdb.Del(ctx, otpAttemptKey(jobID)).Err()
}
