// README: Key/value storage locations for the storefront client (in-memory and Redis-backed with change events).
package storefront

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Storage is one place the client can keep strings under a key.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Watcher is implemented by storages shared between tabs; the channel
// carries the changed key.
type Watcher interface {
	Watch(ctx context.Context) <-chan string
}

// MemoryStorage is process-local. Instances can share a Hub to behave like
// tabs of one browser profile.
type MemoryStorage struct {
	hub  *Hub
	self int
}

// Hub holds the data and fans out change events to every storage but the writer.
type Hub struct {
	mu       sync.Mutex
	data     map[string]string
	watchers map[int][]chan string
	nextID   int
}

func NewHub() *Hub {
	return &Hub{data: make(map[string]string), watchers: make(map[int][]chan string)}
}

// Storage returns a new view over the hub, as a new tab would see it.
func (h *Hub) Storage() *MemoryStorage {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return &MemoryStorage{hub: h, self: h.nextID}
}

func NewMemoryStorage() *MemoryStorage {
	return NewHub().Storage()
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	v, ok := m.hub.data[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	if old, ok := m.hub.data[key]; ok && old == value {
		return nil
	}
	m.hub.data[key] = value
	m.hub.broadcast(m.self, key)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	if _, ok := m.hub.data[key]; !ok {
		return nil
	}
	delete(m.hub.data, key)
	m.hub.broadcast(m.self, key)
	return nil
}

// Watch reports keys changed through other views of the same hub, like a
// browser storage event. The channel closes when ctx is done.
func (m *MemoryStorage) Watch(ctx context.Context) <-chan string {
	ch := make(chan string, 16)
	m.hub.mu.Lock()
	m.hub.watchers[m.self] = append(m.hub.watchers[m.self], ch)
	m.hub.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.hub.mu.Lock()
		defer m.hub.mu.Unlock()
		list := m.hub.watchers[m.self]
		for i, c := range list {
			if c == ch {
				m.hub.watchers[m.self] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// broadcast must be called with mu held. Slow watchers drop events; the
// next poll catches up.
func (h *Hub) broadcast(writer int, key string) {
	for id, list := range h.watchers {
		if id == writer {
			continue
		}
		for _, ch := range list {
			select {
			case ch <- key:
			default:
			}
		}
	}
}

// RedisStorage keeps values under a key prefix and publishes every change on
// a channel so other clients of the same user converge quickly.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix}
}

func (r *RedisStorage) channel() string {
	return r.prefix + ":changes"
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set publishes only when the stored value actually changes, so the periodic
// write-back stays silent.
func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	old, err := r.client.SetArgs(ctx, r.prefix+":"+key, value, redis.SetArgs{Get: true}).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return err
	case old == value:
		return nil
	}
	return r.client.Publish(ctx, r.channel(), key).Err()
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.prefix+":"+key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return r.client.Publish(ctx, r.channel(), key).Err()
}

// Watch relays published key changes until ctx is done.
func (r *RedisStorage) Watch(ctx context.Context) <-chan string {
	out := make(chan string, 16)
	pubsub := r.client.Subscribe(ctx, r.channel())
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
				}
			}
		}
	}()
	return out
}
