// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY support.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"registrar/internal/domain/eav"
	"registrar/internal/infrastructure/storage/postgres"
	"registrar/internal/infrastructure/storage/postgres/eav_repo"
	"registrar/pkg/logger"
)

var _ eav.TypeRegistry = (*RegistryCache)(nil)

// RegistryCache memoizes entity type ids and attribute lists in front of a
// TypeRegistry. Attribute lists of a type are dropped when a NOTIFY on
// eav_repo.SchemaChangedChannel names it, or when this process declares an attribute.
//
// Lookups inside a transaction may read cached entries but never populate
// them: the transaction may hold declarations that are later rolled back.
type RegistryCache struct {
	inner eav.TypeRegistry
	txm   *postgres.TxManager
	pool  *pgxpool.Pool

	mu         sync.RWMutex
	types      map[string]int64
	attributes map[int64][]eav.AttributeDefinition

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewRegistryCache wraps inner. pool is only used by Start for LISTEN and may
// be nil when invalidation is driven by this process alone.
func NewRegistryCache(inner eav.TypeRegistry, txm *postgres.TxManager, pool *pgxpool.Pool) *RegistryCache {
	return &RegistryCache{
		inner:      inner,
		txm:        txm,
		pool:       pool,
		types:      make(map[string]int64),
		attributes: make(map[int64][]eav.AttributeDefinition),
	}
}

// Start begins listening for schema change notifications.
func (c *RegistryCache) Start(ctx context.Context) error {
	if c.pool == nil {
		return fmt.Errorf("registry cache: no pool to listen on")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "registry cache started")
	return nil
}

// Stop gracefully stops the cache listener.
func (c *RegistryCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	logger.Info(context.Background(), "registry cache stopped")
}

// listenLoop holds a dedicated connection subscribed to eav_repo.SchemaChangedChannel,
// reconnecting after failures.
func (c *RegistryCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(c.ctx, "LISTEN "+eav_repo.SchemaChangedChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		// Notifications sent while we were not listening are lost.
		c.InvalidateAll()
		logger.Info(c.ctx, "listening for schema changes", "channel", eav_repo.SchemaChangedChannel)

		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *RegistryCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				logger.Warn(c.ctx, "LISTEN connection lost", "error", err)
				return
			}
			continue
		}

		logger.Debug(c.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)

		c.handleNotification(notification.Channel, notification.Payload)
	}
}

// handleNotification processes one NOTIFY. The payload is the entity type id.
func (c *RegistryCache) handleNotification(channel, payload string) {
	if channel != eav_repo.SchemaChangedChannel {
		return
	}
	typeID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		logger.Warn(context.Background(), "malformed schema change payload", "payload", payload)
		c.InvalidateAll()
		return
	}
	c.Invalidate(typeID)
}

// Invalidate drops the cached attributes of one entity type.
func (c *RegistryCache) Invalidate(entityTypeID int64) {
	c.mu.Lock()
	delete(c.attributes, entityTypeID)
	c.mu.Unlock()
}

// InvalidateAll drops every cached attribute list. Type ids are kept: an
// entity type, once declared, never changes id.
func (c *RegistryCache) InvalidateAll() {
	c.mu.Lock()
	c.attributes = make(map[int64][]eav.AttributeDefinition)
	c.mu.Unlock()
}

func (c *RegistryCache) inTx(ctx context.Context) bool {
	return c.txm != nil && c.txm.GetTx(ctx) != nil
}

// ResolveEntityTypeID implements eav.TypeRegistry.
func (c *RegistryCache) ResolveEntityTypeID(ctx context.Context, code string) (int64, error) {
	c.mu.RLock()
	id, ok := c.types[code]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := c.inner.ResolveEntityTypeID(ctx, code)
	if err != nil {
		return 0, err
	}
	if !c.inTx(ctx) {
		c.mu.Lock()
		c.types[code] = id
		c.mu.Unlock()
	}
	return id, nil
}

// ListAttributes implements eav.TypeRegistry.
func (c *RegistryCache) ListAttributes(ctx context.Context, entityTypeID int64) ([]eav.AttributeDefinition, error) {
	c.mu.RLock()
	defs, ok := c.attributes[entityTypeID]
	c.mu.RUnlock()
	if ok {
		return append([]eav.AttributeDefinition(nil), defs...), nil
	}

	defs, err := c.inner.ListAttributes(ctx, entityTypeID)
	if err != nil {
		return nil, err
	}
	if !c.inTx(ctx) {
		c.mu.Lock()
		c.attributes[entityTypeID] = append([]eav.AttributeDefinition(nil), defs...)
		c.mu.Unlock()
	}
	return defs, nil
}

// ResolveAttributeID implements eav.TypeRegistry from the cached attribute list.
func (c *RegistryCache) ResolveAttributeID(ctx context.Context, entityTypeID int64, name string) (int64, bool, error) {
	defs, err := c.ListAttributes(ctx, entityTypeID)
	if err != nil {
		return 0, false, err
	}
	for _, d := range defs {
		if d.Name == name {
			return d.ID, true, nil
		}
	}
	return 0, false, nil
}

// EnsureEntityType implements eav.TypeRegistry.
func (c *RegistryCache) EnsureEntityType(ctx context.Context, code string) (int64, error) {
	return c.inner.EnsureEntityType(ctx, code)
}

// EnsureAttribute implements eav.TypeRegistry and drops the type's cached list.
func (c *RegistryCache) EnsureAttribute(ctx context.Context, entityTypeID int64, spec eav.AttributeSpec) (eav.AttributeDefinition, error) {
	def, err := c.inner.EnsureAttribute(ctx, entityTypeID, spec)
	if err != nil {
		return eav.AttributeDefinition{}, err
	}
	c.Invalidate(entityTypeID)
	return def, nil
}

// CacheStats reports cache occupancy.
type CacheStats struct {
	EntityTypes      int
	CachedTypes      int
	CachedAttributes int
}

// GetStats returns current cache statistics.
func (c *RegistryCache) GetStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, defs := range c.attributes {
		total += len(defs)
	}
	return CacheStats{
		EntityTypes:      len(c.types),
		CachedTypes:      len(c.attributes),
		CachedAttributes: total,
	}
}
