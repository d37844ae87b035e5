package directory

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"durga.org/internal/ids"
)

// Auditor receives an event for every successful mutation.
type Auditor interface {
	Record(ctx context.Context, event string, fields map[string]any)
}

// Metrics observes workflow outcomes.
type Metrics interface {
	Workflow(operation string, err error)
	RaceRetry(operation string)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, string, map[string]any) {}

type nopMetrics struct{}

func (nopMetrics) Workflow(string, error) {}
func (nopMetrics) RaceRetry(string)       {}

// Service runs the assignment workflows and read operations of the directory.
type Service struct {
	store   Store
	now     func() time.Time
	newID   func() string
	auditor Auditor
	metrics Metrics
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithIDGenerator overrides the identifier source used for new entities.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.newID = fn
		}
		return nil
	}
}

// WithAuditor routes mutation events to a.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) error {
		if a != nil {
			s.auditor = a
		}
		return nil
	}
}

// WithMetrics routes workflow outcomes to m.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) error {
		if m != nil {
			s.metrics = m
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidArgument)
	}
	svc := &Service{
		store:   store,
		now:     time.Now,
		auditor: nopAuditor{},
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.newID == nil {
		svc.newID = ids.NewGenerator(svc.now).New
	}
	return svc, nil
}

// Now returns the service clock reading in UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// Ping checks that the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) stamp(by string) Stamp {
	return Stamp{By: strings.TrimSpace(by), At: s.Now()}
}

func (s *Service) observe(op string, err error) {
	s.metrics.Workflow(op, err)
}

func (s *Service) record(ctx context.Context, event string, fields map[string]any) {
	s.auditor.Record(ctx, event, fields)
}

func requireID(name, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	return v, nil
}

func requireName(name, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s must not be blank", ErrInvalidArgument, name)
	}
	return v, nil
}

func validEmail(v string) (string, error) {
	v = NormalizeLogin(v)
	if v == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return "", fmt.Errorf("%w: invalid email %q", ErrInvalidArgument, v)
	}
	return v, nil
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}
