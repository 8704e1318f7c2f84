package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/harvester/internal/core/domain"
)

// ItemQueue pushes items as JSON onto Redis lists, one list per queue name.
type ItemQueue struct {
	client *Client
	prefix string
}

// NewItemQueue creates a queue writer. Keys are prefix + queue name.
func NewItemQueue(client *Client, prefix string) *ItemQueue {
	return &ItemQueue{client: client, prefix: prefix}
}

func (q *ItemQueue) key(queue string) string {
	return q.prefix + queue
}

// Push appends one item to the tail of queue.
func (q *ItemQueue) Push(ctx context.Context, queue string, item domain.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, q.key(queue), data).Err(); err != nil {
		return fmt.Errorf("rpush failed: %w", err)
	}
	return nil
}

// Len returns the number of items waiting in queue.
func (q *ItemQueue) Len(ctx context.Context, queue string) (int64, error) {
	n, err := q.client.rdb.LLen(ctx, q.key(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("llen failed: %w", err)
	}
	return n, nil
}

// Range returns the items between start and stop, inclusive, in push order.
func (q *ItemQueue) Range(ctx context.Context, queue string, start, stop int64) ([]domain.Item, error) {
	raw, err := q.client.rdb.LRange(ctx, q.key(queue), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	items := make([]domain.Item, 0, len(raw))
	for _, r := range raw {
		var item domain.Item
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}
