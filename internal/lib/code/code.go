// Package code выдаёт одноразовые числовые коды подтверждения почты и сброса пароля.
package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	minCode = 100000
	maxCode = 999999
)

var span = big.NewInt(maxCode - minCode + 1)

// Issue возвращает шестизначный код, равномерно выбранный из диапазона 100000..999999.
func Issue() (string, error) {
	const op = "code.Issue"
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Sprintf("%06d", n.Int64()+minCode), nil
}

// ExpiryFromNow возвращает абсолютный момент истечения кода.
func ExpiryFromNow(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}

// IsExpired сообщает, истёк ли код: now строго позже expiry.
// Отсутствующий срок считается истёкшим.
func IsExpired(now time.Time, expiry *time.Time) bool {
	if expiry == nil {
		return true
	}
	return now.After(*expiry)
}
