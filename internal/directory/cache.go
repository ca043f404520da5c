package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/Karinaskol06/webchat-microservices/internal/model"
)

// Cache keeps successful identity lookups for a fixed TTL. Only positive
// answers are stored: a (nil, nil) from a fallback below is never cached,
// and neither is any error. Concurrent misses for the same key share one
// call to the inner directory.
//
// Entries can be stale for up to one TTL. After a rename, "username:<old>"
// keeps answering with the renamed identity until it expires or a fresh
// lookup of that identity evicts it. Callers that act on a username must
// compare the record id with the one they expect; the authentication
// filter checks it against the token's user id.
type Cache struct {
	inner Directory
	items *ttlcache.Cache[string, model.IdentityRecord]
	group singleflight.Group
}

var _ Directory = (*Cache)(nil)

// WithCache wraps inner with a lookup cache. A non-positive ttl disables
// caching and returns inner unchanged. The returned *Cache must be closed.
func WithCache(inner Directory, ttl time.Duration) Directory {
	if ttl <= 0 {
		return inner
	}
	return NewCache(inner, ttl)
}

// NewCache creates a Cache and starts its expiry loop.
func NewCache(inner Directory, ttl time.Duration) *Cache {
	items := ttlcache.New(
		ttlcache.WithTTL[string, model.IdentityRecord](ttl),
		ttlcache.WithDisableTouchOnHit[string, model.IdentityRecord](),
	)
	go items.Start()

	return &Cache{inner: inner, items: items}
}

// Close stops the expiry loop.
func (c *Cache) Close() error {
	c.items.Stop()
	return nil
}

// Len reports how many lookups are cached.
func (c *Cache) Len() int {
	return c.items.Len()
}

func (c *Cache) GetUserByID(ctx context.Context, id int64) (*model.IdentityRecord, error) {
	return c.lookup("id:"+strconv.FormatInt(id, 10), func() (*model.IdentityRecord, error) {
		return c.inner.GetUserByID(ctx, id)
	})
}

func (c *Cache) GetUserByUsername(ctx context.Context, username string) (*model.IdentityRecord, error) {
	return c.lookup("username:"+username, func() (*model.IdentityRecord, error) {
		return c.inner.GetUserByUsername(ctx, username)
	})
}

func (c *Cache) lookup(key string, load func() (*model.IdentityRecord, error)) (*model.IdentityRecord, error) {
	if item := c.items.Get(key); item != nil {
		rec := item.Value()
		return &rec, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		rec, err := load()
		if err != nil || rec == nil {
			return rec, err
		}
		c.store(*rec)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*model.IdentityRecord)
	if rec == nil {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

// store indexes rec under both keys so a lookup by either finds it. A
// username previously cached for the same id is evicted.
func (c *Cache) store(rec model.IdentityRecord) {
	idKey := "id:" + strconv.FormatInt(rec.ID, 10)
	if prev := c.items.Get(idKey); prev != nil && prev.Value().Username != rec.Username {
		c.items.Delete("username:" + prev.Value().Username)
	}
	c.items.Set(idKey, rec, ttlcache.DefaultTTL)
	c.items.Set("username:"+rec.Username, rec, ttlcache.DefaultTTL)
}

// Register and credential checks always go to the inner directory.

func (c *Cache) RegisterUser(ctx context.Context, req model.RegisterRequest) (*model.IdentityRecord, error) {
	return c.inner.RegisterUser(ctx, req)
}

func (c *Cache) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return c.inner.ExistsByUsername(ctx, username)
}

func (c *Cache) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return c.inner.ExistsByEmail(ctx, email)
}

func (c *Cache) ValidateCredentials(ctx context.Context, username, password string) (bool, error) {
	return c.inner.ValidateCredentials(ctx, username, password)
}

func (c *Cache) ValidateAndGetInfo(ctx context.Context, username, password string) (*model.CredentialsResult, error) {
	return c.inner.ValidateAndGetInfo(ctx, username, password)
}
