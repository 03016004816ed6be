// Package access issues and redeems keys and answers entitlement checks.
package access

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/example/keygate/internal/clock"
	"github.com/example/keygate/internal/entitlement"
	"github.com/example/keygate/internal/expiry"
	"github.com/example/keygate/internal/lock"
)

var (
	ErrNotAuthorized     = errors.New("not authorized")
	ErrExpired           = errors.New("expired")
	ErrExhaustedKeyspace = errors.New("exhausted keyspace")
)

const storeLock = "entitlements"

type Key struct {
	ID     string        `json:"key"`
	Label  string        `json:"duration"`
	Expiry expiry.Expiry `json:"expires_at"`
}

// Status of a grant as seen at a point in time.
type Status string

const (
	StatusLifetime Status = "lifetime"
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
)

type UserGrant struct {
	User   string        `json:"user"`
	Expiry expiry.Expiry `json:"expires_at"`
	Status Status        `json:"status"`
}

type UserReport struct {
	Users   []UserGrant `json:"users"`
	Active  int         `json:"active"`
	Expired int         `json:"expired"`
}

type Options struct {
	AdminID     string
	Generate    KeyGenerator
	MaxAttempts int
	Clock       clock.Clock
	Locker      lock.Locker
	Log         logrus.FieldLogger
}

type Service struct {
	store       entitlement.Store
	admin       string
	generate    KeyGenerator
	maxAttempts int
	clock       clock.Clock
	locker      lock.Locker
	log         logrus.FieldLogger
}

func New(store entitlement.Store, opts Options) *Service {
	if opts.Generate == nil {
		opts.Generate = DigitKeys("NAME-", 5)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 32
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewMemoryLocker()
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Service{
		store:       store,
		admin:       opts.AdminID,
		generate:    opts.Generate,
		maxAttempts: opts.MaxAttempts,
		clock:       opts.Clock,
		locker:      opts.Locker,
		log:         opts.Log.WithField("component", "access"),
	}
}

// Issue mints a key for label. Only the administrator may issue; a refused
// or invalid request leaves the store untouched.
func (s *Service) Issue(ctx context.Context, requestedBy, label string) (Key, error) {
	if s.admin == "" || requestedBy != s.admin {
		return Key{}, ErrNotAuthorized
	}
	exp, err := expiry.Resolve(label, s.clock.Now())
	if err != nil {
		return Key{}, err
	}

	unlock := s.locker.Lock(storeLock)
	defer unlock()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		id, err := s.generate()
		if err != nil {
			return Key{}, err
		}
		err = s.store.PutUnredeemed(ctx, id, exp)
		if errors.Is(err, entitlement.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return Key{}, fmt.Errorf("store key: %w", err)
		}
		if err := s.store.Persist(ctx); err != nil {
			return Key{}, fmt.Errorf("persist key: %w", err)
		}
		s.log.WithFields(logrus.Fields{"key": id, "duration": label, "expires_at": exp.String()}).Info("key issued")
		return Key{ID: id, Label: label, Expiry: exp}, nil
	}
	return Key{}, fmt.Errorf("%w after %d attempts", ErrExhaustedKeyspace, s.maxAttempts)
}

// Redeem consumes key and grants user its expiry. A key is removed on its
// first presentation even when it turns out to be expired.
func (s *Service) Redeem(ctx context.Context, user, key string) (expiry.Expiry, error) {
	unlock := s.locker.Lock(storeLock)
	defer unlock()

	exp, err := s.store.Consume(ctx, key)
	if err != nil {
		return expiry.Expiry{}, err
	}
	fields := logrus.Fields{"user": user, "key": key}
	if exp.Passed(s.clock.Now()) {
		if err := s.store.Persist(ctx); err != nil {
			return expiry.Expiry{}, fmt.Errorf("persist expired key removal: %w", err)
		}
		s.log.WithFields(fields).Info("expired key discarded")
		return expiry.Expiry{}, ErrExpired
	}
	if err := s.store.Grant(ctx, user, exp); err != nil {
		return expiry.Expiry{}, fmt.Errorf("grant: %w", err)
	}
	if err := s.store.Persist(ctx); err != nil {
		return expiry.Expiry{}, fmt.Errorf("persist grant: %w", err)
	}
	fields["expires_at"] = exp.String()
	s.log.WithFields(fields).Info("key redeemed")
	return exp, nil
}

// HasAccess reports whether user holds an unexpired grant.
func (s *Service) HasAccess(ctx context.Context, user string) (bool, error) {
	exp, err := s.store.EntitlementOf(ctx, user)
	if errors.Is(err, entitlement.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !exp.Passed(s.clock.Now()), nil
}

// Users lists every grant with its current status. Administrator only.
func (s *Service) Users(ctx context.Context, requestedBy string) (UserReport, error) {
	if s.admin == "" || requestedBy != s.admin {
		return UserReport{}, ErrNotAuthorized
	}
	grants, err := s.store.Grants(ctx)
	if err != nil {
		return UserReport{}, err
	}
	now := s.clock.Now()
	out := UserReport{Users: make([]UserGrant, 0, len(grants))}
	for user, exp := range grants {
		g := UserGrant{User: user, Expiry: exp}
		switch {
		case exp.IsNever():
			g.Status = StatusLifetime
			out.Active++
		case exp.Passed(now):
			g.Status = StatusExpired
			out.Expired++
		default:
			g.Status = StatusActive
			out.Active++
		}
		out.Users = append(out.Users, g)
	}
	sort.Slice(out.Users, func(i, j int) bool { return out.Users[i].User < out.Users[j].User })
	return out, nil
}
