package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// 任务名
const (
	TaskProcessJob = "process_job"
)

type Queue struct {
	client      *redis.Client
	queueName   string
	delayedName string
}

// TaskMessage 队列消息。投递语义是 at-least-once，
// 消费方必须对重复投递幂等。
type TaskMessage struct {
	Task       string `json:"task"`
	JobID      int64  `json:"job_id"`
	EnqueuedAt int64  `json:"enqueued_at"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:      client,
		queueName:   queueName,
		delayedName: queueName + ":delayed",
	}
}

// Enqueue 将任务加入队列；delay > 0 时先进入延迟集合，
// 到期后由 MoveDue 搬入就绪队列
func (q *Queue) Enqueue(ctx context.Context, msg *TaskMessage, delay time.Duration) error {
	msg.EnqueuedAt = time.Now().Unix()
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if delay > 0 {
		runAt := time.Now().Add(delay)
		return q.client.ZAdd(ctx, q.delayedName, &redis.Z{
			Score:  float64(runAt.UnixMilli()),
			Member: data,
		}).Err()
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从就绪队列获取任务（阻塞）
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*TaskMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg TaskMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// MoveDue 将延迟集合中到期的任务搬入就绪队列，返回搬运数量
func (q *Queue) MoveDue(ctx context.Context, now time.Time, batch int64) (int, error) {
	members, err := q.client.ZRangeByScore(ctx, q.delayedName, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: batch,
	}).Result()
	if err != nil || len(members) == 0 {
		return 0, err
	}

	pipe := q.client.TxPipeline()
	for _, m := range members {
		pipe.LPush(ctx, q.queueName, m)
		pipe.ZRem(ctx, q.delayedName, m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(members), nil
}

// Length 就绪队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// DelayedLength 延迟集合长度
func (q *Queue) DelayedLength(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.delayedName).Result()
}
