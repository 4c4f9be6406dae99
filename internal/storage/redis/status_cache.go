package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const statusKeyFmt = "relay:status:%s" // 设备维度，值为 JSON

const maxUpdateRetries = 5

var (
	// ErrStatusNotCached 缓存中没有该设备的状态
	ErrStatusNotCached = errors.New("relay status not cached")
	// ErrUpdateConflict 并发修改导致乐观锁多次失败
	ErrUpdateConflict = errors.New("relay status update conflict")
)

// watchCmdable 需要 WATCH 事务，*redis.Client 与 *redis.ClusterClient 均满足
type watchCmdable interface {
	redis.Cmdable
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// CachedStatus 最近一次已知的继电器状态
type CachedStatus struct {
	DeviceAddr string    `json:"device_addr"`
	Mask       byte      `json:"mask"`
	UpdatedAt  time.Time `json:"updated_at"`
	Source     string    `json:"source"` // get_status|set_relay|toggle_relay|set_all
}

// StatusCache 继电器状态缓存（只反映本网关观察到的状态）
type StatusCache struct {
	rdb watchCmdable
	ttl time.Duration
}

// NewStatusCache ttl<=0 时不过期
func NewStatusCache(rdb watchCmdable, ttl time.Duration) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: ttl}
}

func statusKey(addr string) string { return fmt.Sprintf(statusKeyFmt, addr) }

// Put 写入状态
func (c *StatusCache) Put(ctx context.Context, st CachedStatus) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return c.rdb.Set(ctx, statusKey(st.DeviceAddr), data, c.ttl).Err()
}

// Get 读取状态，不存在返回 ErrStatusNotCached
func (c *StatusCache) Get(ctx context.Context, addr string) (*CachedStatus, error) {
	data, err := c.rdb.Get(ctx, statusKey(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatusNotCached
	}
	if err != nil {
		return nil, err
	}
	return decodeStatus(data)
}

// Update 在已有缓存上修改位图（WATCH 乐观锁），不存在返回 ErrStatusNotCached
func (c *StatusCache) Update(ctx context.Context, addr, source string, apply func(mask byte) byte) error {
	key := statusKey(addr)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrStatusNotCached
		}
		if err != nil {
			return err
		}
		st, err := decodeStatus(data)
		if err != nil {
			return err
		}
		st.Mask = apply(st.Mask)
		st.Source = source
		st.UpdatedAt = time.Now()
		out, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, c.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := c.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrUpdateConflict
}

// Invalidate 删除缓存（状态无法确定时）
func (c *StatusCache) Invalidate(ctx context.Context, addr string) error {
	return c.rdb.Del(ctx, statusKey(addr)).Err()
}

func decodeStatus(data []byte) (*CachedStatus, error) {
	var st CachedStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &st, nil
}
