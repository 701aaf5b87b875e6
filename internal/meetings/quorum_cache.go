package meetings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/governance"
)

// QuorumCache holds recent quorum snapshots for read-heavy dashboards.
// Any write that changes attendance must Invalidate the meeting; any change
// to an organization's eligible membership must InvalidateOrganization.
type QuorumCache interface {
	Get(ctx context.Context, meetingID uuid.UUID) (*governance.QuorumSnapshot, bool)
	Set(ctx context.Context, orgID uuid.UUID, snap *governance.QuorumSnapshot)
	Invalidate(ctx context.Context, meetingID uuid.UUID)
	InvalidateOrganization(ctx context.Context, orgID uuid.UUID)
}

// NopQuorumCache never caches.
type NopQuorumCache struct{}

func (NopQuorumCache) Get(context.Context, uuid.UUID) (*governance.QuorumSnapshot, bool) {
	return nil, false
}

func (NopQuorumCache) Set(context.Context, uuid.UUID, *governance.QuorumSnapshot) {}

func (NopQuorumCache) Invalidate(context.Context, uuid.UUID) {}

func (NopQuorumCache) InvalidateOrganization(context.Context, uuid.UUID) {}

// RedisQuorumCache stores snapshots as JSON under quorum:{meeting_id} and
// indexes the cached meetings of each organization in the set
// quorum:org:{organization_id}. Redis failures degrade to a cache miss.
type RedisQuorumCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisQuorumCache creates a Redis-backed cache with the given entry TTL.
func NewRedisQuorumCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisQuorumCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQuorumCache{client: client, ttl: ttl, logger: logger}
}

func quorumKey(meetingID uuid.UUID) string {
	return "quorum:" + meetingID.String()
}

func orgQuorumKey(orgID uuid.UUID) string {
	return "quorum:org:" + orgID.String()
}

func (c *RedisQuorumCache) Get(ctx context.Context, meetingID uuid.UUID) (*governance.QuorumSnapshot, bool) {
	raw, err := c.client.Get(ctx, quorumKey(meetingID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("quorum cache get failed", zap.String("meeting_id", meetingID.String()), zap.Error(err))
		}
		return nil, false
	}
	var snap governance.QuorumSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Warn("quorum cache entry unreadable", zap.String("meeting_id", meetingID.String()), zap.Error(err))
		return nil, false
	}
	return &snap, true
}

func (c *RedisQuorumCache) Set(ctx context.Context, orgID uuid.UUID, snap *governance.QuorumSnapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	index := orgQuorumKey(orgID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, quorumKey(snap.MeetingID), raw, c.ttl)
		pipe.SAdd(ctx, index, snap.MeetingID.String())
		pipe.Expire(ctx, index, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn("quorum cache set failed", zap.String("meeting_id", snap.MeetingID.String()), zap.Error(err))
	}
}

func (c *RedisQuorumCache) Invalidate(ctx context.Context, meetingID uuid.UUID) {
	if err := c.client.Del(ctx, quorumKey(meetingID)).Err(); err != nil {
		c.logger.Warn("quorum cache invalidate failed", zap.String("meeting_id", meetingID.String()), zap.Error(err))
	}
}

// InvalidateOrganization drops every cached snapshot of the organization.
func (c *RedisQuorumCache) InvalidateOrganization(ctx context.Context, orgID uuid.UUID) {
	index := orgQuorumKey(orgID)
	ids, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		c.logger.Warn("quorum cache index read failed", zap.String("organization_id", orgID.String()), zap.Error(err))
		return
	}
	keys := organizationKeys(index, ids)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("quorum cache invalidate failed", zap.String("organization_id", orgID.String()), zap.Error(err))
	}
}

// organizationKeys lists the snapshot keys named by an index set plus the
// index itself. Malformed members are skipped.
func organizationKeys(index string, meetingIDs []string) []string {
	keys := make([]string, 0, len(meetingIDs)+1)
	for _, raw := range meetingIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		keys = append(keys, quorumKey(id))
	}
	return append(keys, index)
}
