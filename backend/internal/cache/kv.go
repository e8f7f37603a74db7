package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound：key 不存在（对应 redis.Nil）。
// 调用方必须显式处理；基础设施错误（连接断开等）原样向上传递，
// 绝不能把“连不上存储”当成“key 不存在”处理，否则会破坏房间/锁的不变量。
var ErrNotFound = errors.New("cache: key not found")

// Store 是跨实例共享状态的注入能力（get/set/expire/hash/list 语义）。
// 业务层只依赖这个接口，不依赖具体的 redis 客户端，
// 测试时用内存实现替换。
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetNX：key 不存在时才写入，返回是否写入成功（锁的原子获取依赖它）
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HLen(ctx context.Context, key string) (int64, error)

	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
}
