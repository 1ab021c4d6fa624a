package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"remindbot/internal/models"
)

// popDueScript removes every reminder scored at or below ARGV[1] from the due
// set, deletes its hash and owner index entry, and returns the removed fields.
// KEYS[1] due set, ARGV[1] now (ms), ARGV[2] hash key prefix, ARGV[3] owner key prefix.
var popDueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local out = {}
for _, id in ipairs(ids) do
	local key = ARGV[2] .. id
	local h = redis.call('HMGET', key, 'owner_id', 'target_id', 'message', 'due_at', 'created_at')
	redis.call('ZREM', KEYS[1], id)
	if h[1] then
		redis.call('ZREM', ARGV[3] .. h[1], id)
		redis.call('DEL', key)
		table.insert(out, {id, h[1], h[2], h[3], h[4], h[5]})
	end
end
return out
`)

// RedisReminderStore keeps pending reminders in Redis.
//
// Layout under prefix:
//
//	<prefix>:reminders:seq            id counter
//	<prefix>:reminders:due            zset id -> due_at ms
//	<prefix>:reminders:owner:<owner>  zset id -> due_at ms
//	<prefix>:reminder:<id>            hash with the reminder fields
type RedisReminderStore struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisReminderStore creates a reminder store on client. Keys are namespaced by prefix.
func NewRedisReminderStore(client *redis.Client, prefix string, logger zerolog.Logger) *RedisReminderStore {
	if prefix == "" {
		prefix = "remindbot"
	}
	return &RedisReminderStore{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redis_reminders").Logger(),
	}
}

func (s *RedisReminderStore) seqKey() string      { return s.prefix + ":reminders:seq" }
func (s *RedisReminderStore) dueKey() string      { return s.prefix + ":reminders:due" }
func (s *RedisReminderStore) ownerPrefix() string { return s.prefix + ":reminders:owner:" }
func (s *RedisReminderStore) hashPrefix() string  { return s.prefix + ":reminder:" }

func (s *RedisReminderStore) ownerKey(ownerID int64) string {
	return s.ownerPrefix() + strconv.FormatInt(ownerID, 10)
}

func (s *RedisReminderStore) hashKey(id int64) string {
	return s.hashPrefix() + strconv.FormatInt(id, 10)
}

// AddReminder stores a pending reminder and returns its ID.
func (s *RedisReminderStore) AddReminder(ctx context.Context, ownerID, targetID int64, message string, dueAt, createdAt time.Time) (int64, error) {
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate reminder id: %w", err)
	}

	due := dueAt.UTC().UnixMilli()
	member := strconv.FormatInt(id, 10)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey(id), map[string]interface{}{
			"owner_id":   ownerID,
			"target_id":  targetID,
			"message":    message,
			"due_at":     due,
			"created_at": createdAt.UTC().UnixMilli(),
		})
		pipe.ZAdd(ctx, s.ownerKey(ownerID), redis.Z{Score: float64(due), Member: member})
		pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: float64(due), Member: member})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store reminder: %w", err)
	}
	return id, nil
}

// ListReminders returns the owner's pending reminders by due time.
func (s *RedisReminderStore) ListReminders(ctx context.Context, ownerID int64) ([]models.Reminder, error) {
	ids, err := s.client.ZRange(ctx, s.ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list reminder ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.hashPrefix()+id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}

	list := make([]models.Reminder, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// popped between ZRANGE and HGETALL
			continue
		}
		r, err := reminderFromFields(ids[i], fields)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	sortByDue(list)
	return list, nil
}

// PopDueReminders atomically removes and returns every reminder with due_at <= now.
func (s *RedisReminderStore) PopDueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	res, err := popDueScript.Run(ctx, s.client,
		[]string{s.dueKey()},
		now.UTC().UnixMilli(), s.hashPrefix(), s.ownerPrefix(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("pop due reminders: %w", err)
	}

	due := make([]models.Reminder, 0, len(res))
	for _, item := range res {
		row, ok := item.([]interface{})
		if !ok || len(row) != 6 {
			return nil, fmt.Errorf("pop due reminders: unexpected reply %v", item)
		}
		vals := make([]string, len(row))
		for i, v := range row {
			vals[i], _ = v.(string)
		}
		r, err := reminderFromFields(vals[0], map[string]string{
			"owner_id":   vals[1],
			"target_id":  vals[2],
			"message":    vals[3],
			"due_at":     vals[4],
			"created_at": vals[5],
		})
		if err != nil {
			s.logger.Error().Err(err).Str("reminder_id", vals[0]).Msg("Dropping unreadable reminder")
			continue
		}
		due = append(due, r)
	}
	sortByDue(due)
	return due, nil
}

// CountPending returns the number of pending reminders.
func (s *RedisReminderStore) CountPending(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.dueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count reminders: %w", err)
	}
	return n, nil
}

func reminderFromFields(id string, f map[string]string) (models.Reminder, error) {
	var (
		r   models.Reminder
		err error
	)
	parse := func(name, s string) int64 {
		if err != nil {
			return 0
		}
		var v int64
		v, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			err = fmt.Errorf("reminder %s: bad %s %q: %w", id, name, s, err)
		}
		return v
	}

	r.ID = parse("id", id)
	r.OwnerID = parse("owner_id", f["owner_id"])
	r.TargetID = parse("target_id", f["target_id"])
	r.DueAt = time.UnixMilli(parse("due_at", f["due_at"])).UTC()
	r.CreatedAt = time.UnixMilli(parse("created_at", f["created_at"])).UTC()
	r.Message = f["message"]
	return r, err
}

func sortByDue(list []models.Reminder) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].DueAt.Equal(list[j].DueAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].DueAt.Before(list[j].DueAt)
	})
}
