package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"society-ticketing/internal/models"

	"github.com/redis/go-redis/v9"
)

// Default Redis keys for payout retries.
const (
	DefaultPayoutQueueKey      = "payouts:retry"
	DefaultPayoutDeadLetterKey = "payouts:dead"
)

// ClaimedPayout is an instruction taken for a retry. It stays on the queue's
// in-flight list until Ack, Requeue or DeadLetter records the outcome.
type ClaimedPayout struct {
	Instruction *models.PayoutInstruction
	raw         string
}

// PayoutQueue holds transfers that failed and must be retried. Instructions
// are never removed before their outcome is stored.
type PayoutQueue interface {
	Enqueue(ctx context.Context, instr *models.PayoutInstruction) error
	// Claim moves the oldest instruction to the in-flight list, or returns nil
	// when the queue is empty.
	Claim(ctx context.Context) (*ClaimedPayout, error)
	// Ack drops a claimed instruction whose transfer went through.
	Ack(ctx context.Context, c *ClaimedPayout) error
	// Requeue puts the claimed instruction, as modified, back on the queue.
	Requeue(ctx context.Context, c *ClaimedPayout) error
	// DeadLetter moves the claimed instruction, as modified, to dead letters.
	DeadLetter(ctx context.Context, c *ClaimedPayout) error
	// Recover returns instructions left in flight by a stopped worker to the
	// front of the queue.
	Recover(ctx context.Context) (int, error)
	Len(ctx context.Context) (int64, error)
	// Peek returns up to n of the oldest instructions without removing them.
	Peek(ctx context.Context, n int64) ([]*models.PayoutInstruction, error)
}

// RedisPayoutQueue is a PayoutQueue on Redis lists. New entries are pushed
// on the left and claimed from the right into "<key>:processing".
type RedisPayoutQueue struct {
	client        redis.Cmdable
	key           string
	processingKey string
	deadKey       string
}

// NewRedisPayoutQueue creates a queue on the given keys
func NewRedisPayoutQueue(client redis.Cmdable, key, deadKey string) *RedisPayoutQueue {
	if key == "" {
		key = DefaultPayoutQueueKey
	}
	if deadKey == "" {
		deadKey = DefaultPayoutDeadLetterKey
	}
	return &RedisPayoutQueue{client: client, key: key, processingKey: key + ":processing", deadKey: deadKey}
}

func (q *RedisPayoutQueue) Enqueue(ctx context.Context, instr *models.PayoutInstruction) error {
	data, err := json.Marshal(instr)
	if err != nil {
		return fmt.Errorf("failed to encode payout instruction: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue payout: %w", err)
	}
	return nil
}

// Claim moves an entry atomically with LMOVE. An entry that cannot be decoded
// is moved to dead letters as is.
func (q *RedisPayoutQueue) Claim(ctx context.Context) (*ClaimedPayout, error) {
	raw, err := q.client.LMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim payout: %w", err)
	}

	var instr models.PayoutInstruction
	if err := json.Unmarshal([]byte(raw), &instr); err != nil {
		if merr := q.settle(ctx, q.deadKey, raw, []byte(raw)); merr != nil {
			return nil, errors.Join(fmt.Errorf("failed to decode payout instruction: %w", err), merr)
		}
		return nil, fmt.Errorf("failed to decode payout instruction: %w", err)
	}
	return &ClaimedPayout{Instruction: &instr, raw: raw}, nil
}

func (q *RedisPayoutQueue) Ack(ctx context.Context, c *ClaimedPayout) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, c.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack payout: %w", err)
	}
	return nil
}

func (q *RedisPayoutQueue) Requeue(ctx context.Context, c *ClaimedPayout) error {
	data, err := json.Marshal(c.Instruction)
	if err != nil {
		return fmt.Errorf("failed to encode payout instruction: %w", err)
	}
	if err := q.settle(ctx, q.key, c.raw, data); err != nil {
		return fmt.Errorf("failed to requeue payout: %w", err)
	}
	return nil
}

func (q *RedisPayoutQueue) DeadLetter(ctx context.Context, c *ClaimedPayout) error {
	data, err := json.Marshal(c.Instruction)
	if err != nil {
		return fmt.Errorf("failed to encode payout instruction: %w", err)
	}
	if err := q.settle(ctx, q.deadKey, c.raw, data); err != nil {
		return fmt.Errorf("failed to dead-letter payout: %w", err)
	}
	return nil
}

// settle pushes data onto dest and drops raw from the in-flight list in one
// MULTI/EXEC, so the entry is never in neither list.
func (q *RedisPayoutQueue) settle(ctx context.Context, dest, raw string, data []byte) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, dest, data)
		pipe.LRem(ctx, q.processingKey, 1, raw)
		return nil
	})
	return err
}

func (q *RedisPayoutQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processingKey, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to recover in-flight payouts: %w", err)
		}
		n++
	}
}

func (q *RedisPayoutQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read payout queue length: %w", err)
	}
	return n, nil
}

func (q *RedisPayoutQueue) Peek(ctx context.Context, n int64) ([]*models.PayoutInstruction, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := q.client.LRange(ctx, q.key, -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read payout queue: %w", err)
	}

	out := make([]*models.PayoutInstruction, 0, len(items))
	// Oldest entries are at the right end.
	for i := len(items) - 1; i >= 0; i-- {
		var instr models.PayoutInstruction
		if err := json.Unmarshal([]byte(items[i]), &instr); err != nil {
			return nil, fmt.Errorf("failed to decode payout instruction: %w", err)
		}
		out = append(out, &instr)
	}
	return out, nil
}

// MemoryPayoutQueue is a PayoutQueue for development without Redis.
type MemoryPayoutQueue struct {
	mu       sync.Mutex
	seq      int
	items    []models.PayoutInstruction
	inFlight map[string]models.PayoutInstruction
	dead     []models.PayoutInstruction
}

// NewMemoryPayoutQueue creates an empty in-process queue
func NewMemoryPayoutQueue() *MemoryPayoutQueue {
	return &MemoryPayoutQueue{inFlight: make(map[string]models.PayoutInstruction)}
}

func (q *MemoryPayoutQueue) Enqueue(_ context.Context, instr *models.PayoutInstruction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, *instr)
	return nil
}

func (q *MemoryPayoutQueue) Claim(_ context.Context) (*ClaimedPayout, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	instr := q.items[0]
	q.items = q.items[1:]

	q.seq++
	token := strconv.Itoa(q.seq)
	q.inFlight[token] = instr
	return &ClaimedPayout{Instruction: &instr, raw: token}, nil
}

func (q *MemoryPayoutQueue) Ack(_ context.Context, c *ClaimedPayout) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, c.raw)
	return nil
}

func (q *MemoryPayoutQueue) Requeue(_ context.Context, c *ClaimedPayout) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, c.raw)
	q.items = append(q.items, *c.Instruction)
	return nil
}

func (q *MemoryPayoutQueue) DeadLetter(_ context.Context, c *ClaimedPayout) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, c.raw)
	q.dead = append(q.dead, *c.Instruction)
	return nil
}

func (q *MemoryPayoutQueue) Recover(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tokens := make([]string, 0, len(q.inFlight))
	for token := range q.inFlight {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		a, _ := strconv.Atoi(tokens[i])
		b, _ := strconv.Atoi(tokens[j])
		return a < b
	})

	recovered := make([]models.PayoutInstruction, 0, len(tokens))
	for _, token := range tokens {
		recovered = append(recovered, q.inFlight[token])
		delete(q.inFlight, token)
	}
	q.items = append(recovered, q.items...)
	return len(recovered), nil
}

func (q *MemoryPayoutQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *MemoryPayoutQueue) Peek(_ context.Context, n int64) ([]*models.PayoutInstruction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*models.PayoutInstruction
	for i := 0; i < len(q.items) && int64(i) < n; i++ {
		instr := q.items[i]
		out = append(out, &instr)
	}
	return out, nil
}

// InFlight returns how many claimed instructions have no recorded outcome.
func (q *MemoryPayoutQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// DeadLetters returns the instructions that gave up.
func (q *MemoryPayoutQueue) DeadLetters() []models.PayoutInstruction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PayoutInstruction(nil), q.dead...)
}
