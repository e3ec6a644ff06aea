package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// BlockedIPSet tracks banned client IPs with independent expiry times.
// An IP enters on detection of a disallowed user agent or malicious
// payload and leaves automatically when its block expires, or earlier via
// Unblock. Expired entries are pruned lazily on read and by a periodic
// Sweep; without the sweep, entries for IPs that never return would sit
// in the map for the process lifetime.
type BlockedIPSet struct {
	mu      sync.Mutex
	entries map[string]time.Time

	scheduler *cron.Cron
	logger    *slog.Logger
}

// NewBlockedIPSet creates an empty block set and starts the periodic
// sweep of expired entries. Call Stop when the set is no longer needed.
// A nil logger defaults to slog.Default().
func NewBlockedIPSet(logger *slog.Logger) *BlockedIPSet {
	if logger == nil {
		logger = slog.Default()
	}
	s := &BlockedIPSet{
		entries: make(map[string]time.Time),
		logger:  logger,
	}

	s.scheduler = cron.New()
	_, err := s.scheduler.AddFunc("@every 5m", func() {
		if removed := s.Sweep(); removed > 0 {
			s.logger.Debug("swept expired IP blocks", slog.Int("removed", removed))
		}
	})
	if err != nil {
		logger.Error("failed to schedule block set sweep", slog.String("error", err.Error()))
	} else {
		s.scheduler.Start()
	}
	return s
}

// Stop halts the periodic sweep.
func (s *BlockedIPSet) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Block bans an IP until now+duration. Re-blocking extends the expiry.
func (s *BlockedIPSet) Block(ip string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ip] = time.Now().Add(duration)
	s.logger.Warn("IP blocked",
		slog.String("ip", ip),
		slog.Duration("duration", duration))
}

// IsBlocked reports whether the IP is currently banned. An expired entry
// is removed on the way out.
func (s *BlockedIPSet) IsBlocked(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.entries[ip]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.entries, ip)
		return false
	}
	return true
}

// Unblock removes an IP before its expiry.
func (s *BlockedIPSet) Unblock(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[ip]; ok {
		delete(s.entries, ip)
		s.logger.Info("IP unblocked", slog.String("ip", ip))
	}
}

// Sweep removes all expired entries and returns the number removed.
func (s *BlockedIPSet) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for ip, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, ip)
			removed++
		}
	}
	return removed
}

// Count returns the number of entries, including any not yet swept.
func (s *BlockedIPSet) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
