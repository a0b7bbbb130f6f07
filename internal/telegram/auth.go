package telegram

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// AuthManager управляет правами доступа и rate limiting
type AuthManager struct {
	adminIDs     map[int64]bool
	rateLimiters map[int64]*rateLimiter
	mu           sync.RWMutex
}

type rateLimiter struct {
	lastRequest  time.Time
	requestCount int
}

// NewAuthManager создает менеджер авторизации из CSV-списка админов
func NewAuthManager(adminIDsStr string) *AuthManager {
	am := &AuthManager{
		adminIDs:     make(map[int64]bool),
		rateLimiters: make(map[int64]*rateLimiter),
	}

	if adminIDsStr != "" {
		for _, idStr := range strings.Split(adminIDsStr, ",") {
			idStr = strings.TrimSpace(idStr)
			if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
				am.adminIDs[id] = true
			}
		}
	}

	return am
}

// IsAdmin проверяет, является ли пользователь администратором.
// Пустой список админов разрешает всем (локальная разработка).
func (am *AuthManager) IsAdmin(userID int64) bool {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if len(am.adminIDs) == 0 {
		return true
	}
	return am.adminIDs[userID]
}

// CheckRateLimit ограничивает частоту команд от пользователя
func (am *AuthManager) CheckRateLimit(userID int64, maxPerMinute int) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	limiter, exists := am.rateLimiters[userID]
	if !exists {
		limiter = &rateLimiter{}
		am.rateLimiters[userID] = limiter
	}

	now := time.Now()
	if now.Sub(limiter.lastRequest) > time.Minute {
		limiter.requestCount = 0
		limiter.lastRequest = now
	}

	limiter.requestCount++
	return limiter.requestCount <= maxPerMinute
}
