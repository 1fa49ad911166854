package services

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var intervalExpr = regexp.MustCompile(`^(\d+)([mhd])$`)

// ParseInterval parses an interval expression like "5m", "2h" or "1d".
func ParseInterval(expr string) (time.Duration, error) {
	m := intervalExpr.FindStringSubmatch(expr)
	if m == nil {
		return 0, fmt.Errorf("%w: bad interval expression %q", ErrTriggerConfig, expr)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: bad interval expression %q", ErrTriggerConfig, expr)
	}
	switch m[2] {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: bad interval unit in %q", ErrTriggerConfig, expr)
}

// Scheduler 注入式定时能力，持有 (ruleID, triggerID) → 取消句柄表。
// interval 触发器用 time.Ticker，cron 触发器委托 robfig/cron（5 字段，
// 通过 CRON_TZ 前缀支持时区）。
type Scheduler struct {
	mu        sync.Mutex
	logger    *logrus.Logger
	cron      *cron.Cron
	intervals map[string]chan struct{}
	cronIDs   map[string]cron.EntryID
}

func NewScheduler(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	c := cron.New()
	c.Start()
	return &Scheduler{
		logger:    logger,
		cron:      c,
		intervals: make(map[string]chan struct{}),
		cronIDs:   make(map[string]cron.EntryID),
	}
}

// ArmInterval starts a repeating timer under the given key, replacing any
// existing timer for that key.
func (s *Scheduler) ArmInterval(key string, every time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked(key)

	stop := make(chan struct{})
	s.intervals[key] = stop
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fire()
			}
		}
	}()
}

// ArmCron schedules a standard 5-field cron expression, evaluated in the
// given IANA timezone when set.
func (s *Scheduler) ArmCron(key, expr, timezone string, fire func()) error {
	if timezone != "" {
		expr = "CRON_TZ=" + timezone + " " + expr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked(key)

	id, err := s.cron.AddFunc(expr, fire)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTriggerConfig, err)
	}
	s.cronIDs[key] = id
	return nil
}

// Disarm cancels the timer or cron entry registered under key, if any.
func (s *Scheduler) Disarm(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked(key)
}

func (s *Scheduler) disarmLocked(key string) {
	if stop, ok := s.intervals[key]; ok {
		close(stop)
		delete(s.intervals, key)
	}
	if id, ok := s.cronIDs[key]; ok {
		s.cron.Remove(id)
		delete(s.cronIDs, key)
	}
}

// DisarmPrefix cancels every entry whose key starts with prefix. Used when a
// rule with several schedule triggers is unregistered.
func (s *Scheduler) DisarmPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.intervals {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			s.disarmLocked(key)
		}
	}
	for key := range s.cronIDs {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			s.disarmLocked(key)
		}
	}
}

// ArmedCount reports how many entries are live. Exposed for the metrics handler.
func (s *Scheduler) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.intervals) + len(s.cronIDs)
}

// Stop cancels all timers and halts the cron runner.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for key := range s.intervals {
		close(s.intervals[key])
		delete(s.intervals, key)
	}
	s.mu.Unlock()
	ctx := s.cron.Stop()
	<-ctx.Done()
}
