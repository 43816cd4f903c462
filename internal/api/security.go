package api

import (
	"net"
	"strings"
	"sync"
	"time"
)

// Telegram's published webhook source ranges.
// https://core.telegram.org/bots/webhooks#the-short-version
var telegramRanges = []ipRange{
	{start: ipToInt("149.154.160.0"), end: ipToInt("149.154.175.255")}, // 149.154.160.0/20
	{start: ipToInt("91.108.4.0"), end: ipToInt("91.108.7.255")},       // 91.108.4.0/22
}

type ipRange struct {
	start, end uint32
}

// ipToInt converts a dotted IPv4 address for range comparison. Unparseable
// input yields 0, which no range contains.
func ipToInt(ip string) uint32 {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return 0
	}
	v4 := parsed.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

// isTelegramIP reports whether the address falls inside Telegram's webhook
// ranges.
func isTelegramIP(ip string) bool {
	n := ipToInt(ip)
	if n == 0 {
		return false
	}
	for _, r := range telegramRanges {
		if n >= r.start && n <= r.end {
			return true
		}
	}
	return false
}

// rateLimiter counts requests per chat in a fixed one-minute window.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[int64]*bucket
	now     func() time.Time
}

type bucket struct {
	count int
	reset time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		limit:   perMinute,
		window:  time.Minute,
		buckets: make(map[int64]*bucket),
		now:     time.Now,
	}
}

// allow reports whether the chat is under its limit, counting this request.
func (l *rateLimiter) allow(chatID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[chatID]
	if !ok || now.After(b.reset) {
		l.buckets[chatID] = &bucket{count: 1, reset: now.Add(l.window)}
		return true
	}
	b.count++
	return b.count <= l.limit
}
