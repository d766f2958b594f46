package health

import (
	"context"
	"time"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Service encapsulates health-related checks.
type Service struct {
	DB          Pinger
	Store       string
	PingTimeout time.Duration
}

// NewService constructs a new health service. db may be nil when flows live
// in memory.
func NewService(db Pinger, store string) *Service {
	return &Service{DB: db, Store: store, PingTimeout: 2 * time.Second}
}

// Status is the readiness payload.
type Status struct {
	OK       bool   `json:"ok"`
	Database string `json:"database"`
	Store    string `json:"store"`
}

// Liveness reports that the process is serving.
func (s *Service) Liveness() map[string]bool {
	return map[string]bool{"ok": true}
}

// Readiness checks the flow store connection.
func (s *Service) Readiness(ctx context.Context) Status {
	st := Status{OK: true, Database: "memory", Store: s.Store}
	if s.DB == nil {
		return st
	}
	timeout := s.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		st.OK = false
		st.Database = "unreachable"
		return st
	}
	st.Database = "ok"
	return st
}
