package redis

import (
	"context"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
)

const (
	onlineOperatorsKey     = "chat:operators:online"
	operatorConnectionPref = "chat:operator:connection:"
	operatorStatusPref     = "chat:operator:status:"
)

type presenceRepository struct {
	client *redislib.Client
	ttl    time.Duration
}

// NewPresenceRepository creates a Redis-backed presence repository. Presence
// is TTL-bounded: a member of the online set whose connection key expired is
// treated as gone and pruned on the next read, so a crashed process cannot
// leave an operator permanently marked reachable.
func NewPresenceRepository(client *redislib.Client, ttl time.Duration) repository.PresenceRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &presenceRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *presenceRepository) SetOperatorOnline(ctx context.Context, operatorID, connectionID string) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, onlineOperatorsKey, operatorID)
	pipe.Set(ctx, operatorConnectionPref+operatorID, connectionID, r.ttl)
	pipe.Set(ctx, operatorStatusPref+operatorID, "online", r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *presenceRepository) SetOperatorOffline(ctx context.Context, operatorID string) error {
	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, onlineOperatorsKey, operatorID)
	pipe.Del(ctx, operatorConnectionPref+operatorID)
	pipe.Set(ctx, operatorStatusPref+operatorID, "offline", time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *presenceRepository) OnlineOperators(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, onlineOperatorsKey).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	online := make([]string, 0, len(members))
	var stale []interface{}
	for _, id := range members {
		exists, err := r.client.Exists(ctx, operatorConnectionPref+id).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			stale = append(stale, id)
			continue
		}
		online = append(online, id)
	}

	if len(stale) > 0 {
		// connection key expired, the set membership is left over from a
		// process that never said goodbye
		_ = r.client.SRem(ctx, onlineOperatorsKey, stale...).Err()
	}

	return online, nil
}

func (r *presenceRepository) IsOperatorOnline(ctx context.Context, operatorID string) (bool, error) {
	member, err := r.client.SIsMember(ctx, onlineOperatorsKey, operatorID).Result()
	if err != nil || !member {
		return false, err
	}
	exists, err := r.client.Exists(ctx, operatorConnectionPref+operatorID).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (r *presenceRepository) ConnectionID(ctx context.Context, operatorID string) (string, error) {
	value, err := r.client.Get(ctx, operatorConnectionPref+operatorID).Result()
	if err != nil {
		if err == redislib.Nil {
			return "", domain.NewError(domain.ErrCodeNotFound, fmt.Sprintf("no connection for operator %s", operatorID))
		}
		return "", err
	}
	return value, nil
}

func (r *presenceRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *presenceRepository) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redislib.Nil {
			return "", domain.NewError(domain.ErrCodeNotFound, "key not found")
		}
		return "", err
	}
	return value, nil
}

func (r *presenceRepository) Increment(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *presenceRepository) Decrement(ctx context.Context, key string) (int64, error) {
	return r.client.Decr(ctx, key).Result()
}
