// Package tier resolves a user's tier name. The router treats tier lookup as
// an external collaborator: a lookup failure falls back to the configured
// default tier rather than failing the request.
package tier

import (
	"context"
	"errors"
	"strings"

	"github.com/modelgate/modelgate/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Resolver maps a user ID to a tier name.
type Resolver interface {
	Resolve(ctx context.Context, userID string) string
}

// GormResolver resolves tiers from the users table, falling back to a
// default tier when the user is unknown or the lookup fails.
type GormResolver struct {
	db          *gorm.DB
	defaultTier string
}

// NewGormResolver constructs a DB-backed resolver.
func NewGormResolver(db *gorm.DB, defaultTier string) *GormResolver {
	return &GormResolver{db: db, defaultTier: defaultTier}
}

// Resolve returns the user's tier name, or the default tier on any failure.
func (r *GormResolver) Resolve(ctx context.Context, userID string) string {
	if r == nil || r.db == nil {
		return r.fallback()
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return r.fallback()
	}

	var row models.User
	errFind := r.db.WithContext(ctx).
		Select("tier_name").
		Where("external_id = ?", userID).
		Take(&row).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).Warnf("tier resolver: lookup failed (user=%s), using default", userID)
		}
		return r.fallback()
	}
	if strings.TrimSpace(row.TierName) == "" {
		return r.fallback()
	}
	return row.TierName
}

func (r *GormResolver) fallback() string {
	if r == nil || strings.TrimSpace(r.defaultTier) == "" {
		return "free"
	}
	return r.defaultTier
}

// StaticResolver resolves tiers from a fixed map. Intended for tests.
type StaticResolver struct {
	Tiers   map[string]string
	Default string
}

// Resolve returns the mapped tier or the default.
func (r *StaticResolver) Resolve(_ context.Context, userID string) string {
	if r != nil {
		if name, ok := r.Tiers[userID]; ok && name != "" {
			return name
		}
		if r.Default != "" {
			return r.Default
		}
	}
	return "free"
}
