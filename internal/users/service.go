package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

const defaultTouchInterval = time.Minute

// ServiceConfig describes the dependencies required for identity bookkeeping.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	// TouchInterval limits how often last_seen_at is written for an unchanged identity.
	TouchInterval time.Duration
}

// Service records every authenticated caller.
type Service struct {
	db            *gorm.DB
	now           func() time.Time
	touchInterval time.Duration
	cache         sync.Map
}

type cachedIdentity struct {
	identity Identity
	touched  time.Time
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	touchInterval := cfg.TouchInterval
	if touchInterval <= 0 {
		touchInterval = defaultTouchInterval
	}
	return &Service{
		db:            cfg.Database,
		now:           clock,
		touchInterval: touchInterval,
		cache:         sync.Map{},
	}, nil
}

// Record creates or refreshes the identity for the supplied claims.
func (s *Service) Record(ctx context.Context, claims auth.Claims) (Identity, error) {
	subject := normalize(claims.Subject)
	if subject == "" {
		return Identity{}, ErrInvalidIdentity
	}
	now := s.now().UTC()
	incoming := Identity{
		Subject:  subject,
		Username: normalize(claims.Name),
		Email:    normalize(claims.Email),
		Role:     normalize(claims.Role),
	}

	if cached, ok := s.cache.Load(subject); ok {
		entry, ok := cached.(cachedIdentity)
		if ok && sameProfile(entry.identity, incoming) && now.Sub(entry.touched) < s.touchInterval {
			return entry.identity, nil
		}
	}

	var identity Identity
	err := s.db.WithContext(ctx).
		Where("subject = ?", subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = incoming
		identity.FirstSeenAt = now
		identity.LastSeenAt = now
		if err := s.db.WithContext(ctx).Create(&identity).Error; err != nil {
			return Identity{}, err
		}
	} else if err != nil {
		return Identity{}, err
	} else {
		updates := map[string]interface{}{"last_seen_at": now}
		if incoming.Username != "" && incoming.Username != identity.Username {
			updates["username"] = incoming.Username
			identity.Username = incoming.Username
		}
		if incoming.Email != "" && incoming.Email != identity.Email {
			updates["user_email"] = incoming.Email
			identity.Email = incoming.Email
		}
		if incoming.Role != identity.Role {
			updates["role"] = incoming.Role
			identity.Role = incoming.Role
		}
		identity.LastSeenAt = now
		if err := s.db.WithContext(ctx).
			Model(&Identity{}).
			Where("subject = ?", subject).
			Updates(updates).
			Error; err != nil {
			return Identity{}, err
		}
	}

	s.cache.Store(subject, cachedIdentity{identity: identity, touched: now})
	return identity, nil
}

// Lookup returns the stored identity for subject.
func (s *Service) Lookup(ctx context.Context, subject string) (Identity, error) {
	var identity Identity
	err := s.db.WithContext(ctx).
		Where("subject = ?", normalize(subject)).
		First(&identity).
		Error
	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}

func sameProfile(stored, incoming Identity) bool {
	return stored.Username == incoming.Username &&
		stored.Email == incoming.Email &&
		stored.Role == incoming.Role
}
