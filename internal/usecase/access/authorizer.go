package access

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"ticketbot/internal/bootstrap/logging"
	"ticketbot/internal/errs"
	"ticketbot/internal/ports"
)

const (
	cacheKeyPrefix = "moderator:"
	valueYes       = "1"
	valueNo        = "0"
)

// Authorizer answers whether a member holds the moderator role. Answers are
// cached for ttl; a zero ttl disables caching.
type Authorizer struct {
	roles ports.RoleDirectory
	cache ports.Cache
	ttl   time.Duration
}

func NewAuthorizer(roles ports.RoleDirectory, cache ports.Cache, ttl time.Duration) *Authorizer {
	return &Authorizer{roles: roles, cache: cache, ttl: ttl}
}

func (a *Authorizer) IsModerator(ctx context.Context, userID uint64) (bool, error) {
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if a.roles == nil {
		return false, errors.New("role directory is required")
	}
	if userID == 0 {
		return false, errs.New(errs.KindValidation, "user id is required")
	}
	ctx = logging.WithAttrs(ctx, slog.String("component", "usecase.access"), slog.Uint64("user_id", userID))

	key := cacheKey(userID)
	if a.cacheEnabled() {
		value, found, err := a.cache.Get(ctx, key)
		switch {
		case err != nil:
			logging.Warn(ctx, "moderator cache read failed", slog.Any("err", errs.Loggable(err)))
		case found:
			logging.Debug(ctx, "moderator cache hit")
			return value == valueYes, nil
		}
	}

	ok, err := a.roles.HasModeratorRole(ctx, userID)
	if err != nil {
		return false, errs.Wrap(err, "resolve moderator role")
	}

	if a.cacheEnabled() {
		value := valueNo
		if ok {
			value = valueYes
		}
		if err := a.cache.Set(ctx, key, value, a.ttl); err != nil {
			logging.Warn(ctx, "moderator cache write failed", slog.Any("err", errs.Loggable(err)))
		}
	}
	return ok, nil
}

// Forget drops the cached answer for userID.
func (a *Authorizer) Forget(ctx context.Context, userID uint64) error {
	if !a.cacheEnabled() {
		return nil
	}
	return a.cache.Delete(ctx, cacheKey(userID))
}

func (a *Authorizer) cacheEnabled() bool {
	return a.cache != nil && a.ttl > 0
}

func cacheKey(userID uint64) string {
	return cacheKeyPrefix + strconv.FormatUint(userID, 10)
}
