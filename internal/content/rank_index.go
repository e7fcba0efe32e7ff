package content

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// 定义与排序相关的Redis键名
const (
	// 社区内帖子的热度排序，Score 为 ranking_scaled
	hotKeyFormat = "community:%d:hot"
	// 社区内帖子的得分排序，Score 为 score
	topKeyFormat = "community:%d:top"
	// 帖子下回复的排序，Score 为 wilson 下界
	repliesKeyFormat = "post:%d:replies"
	// 每条内容最近一次写入索引时的版本号，field 为 {kind}:{id}
	versionsKey = "rank:versions"
)

// 只有版本号更新的写入才会修改有序集合。
// KEYS[1] 是版本哈希，其余为有序集合；ARGV 依次为 field、版本、成员和各集合的分数。
var versionedZAdd = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current and tonumber(ARGV[2]) <= tonumber(current) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
for i = 2, #KEYS do
	redis.call('ZADD', KEYS[i], ARGV[i + 2], ARGV[3])
end
return 1
`)

// Sort 是帖子列表的排序方式
type Sort string

const (
	SortHot Sort = "hot"
	SortTop Sort = "top"
)

// RankIndex 把数据库中的排序字段镜像到Redis有序集合中，供列表查询使用。
// 数据库是唯一的真实来源，索引可以随时从数据库重建。
type RankIndex struct {
	rdb *redis.Client
}

// NewRankIndex 创建排序索引
func NewRankIndex(rdb *redis.Client) *RankIndex {
	return &RankIndex{rdb: rdb}
}

// Update 写入一条内容的排序值。
// 提交顺序和写入顺序可能不同，版本号不高于已写入版本的快照会被忽略。
func (x *RankIndex) Update(ctx context.Context, c Content) error {
	keys, args := versionedArgs(c)
	if err := versionedZAdd.Run(ctx, x.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("更新排序索引 %s 失败: %w", c.LockKey(), err)
	}
	return nil
}

// Posts 按指定排序返回社区内的帖子ID
func (x *RankIndex) Posts(ctx context.Context, communityID uint, sort Sort, offset, limit int64) ([]uint, error) {
	var key string
	switch sort {
	case SortHot:
		key = fmt.Sprintf(hotKeyFormat, communityID)
	case SortTop:
		key = fmt.Sprintf(topKeyFormat, communityID)
	default:
		return nil, fmt.Errorf("未知的排序方式: %q", sort)
	}
	return x.rangeIDs(ctx, key, offset, limit)
}

// Replies 按 wilson 下界返回帖子下的回复ID
func (x *RankIndex) Replies(ctx context.Context, postID uint, offset, limit int64) ([]uint, error) {
	return x.rangeIDs(ctx, fmt.Sprintf(repliesKeyFormat, postID), offset, limit)
}

// Rebuild 从数据库重新填充全部索引
// 注意：调用方需要确保此时Redis可用。
func (x *RankIndex) Rebuild(ctx context.Context, repo *Repository) error {
	return repo.List(ctx, 500, func(batch []Content) error {
		pipe := x.rdb.Pipeline()
		for _, c := range batch {
			keys, args := versionedArgs(c)
			// 管道中无法处理 NOSCRIPT 回退，这里直接发送脚本
			versionedZAdd.Eval(ctx, pipe, keys, args...)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("批量写入排序索引失败: %w", err)
		}
		return nil
	})
}

func versionedArgs(c Content) ([]string, []any) {
	member := strconv.FormatUint(uint64(c.ID), 10)
	keys := []string{versionsKey}
	args := []any{fmt.Sprintf("%s:%d", c.Kind, c.ID), c.Version, member}
	switch c.Kind {
	case KindPost:
		keys = append(keys, fmt.Sprintf(hotKeyFormat, c.CommunityID), fmt.Sprintf(topKeyFormat, c.CommunityID))
		args = append(args, c.RankingScaled, c.Score)
	case KindReply:
		keys = append(keys, fmt.Sprintf(repliesKeyFormat, c.PostID))
		args = append(args, c.Ranking)
	}
	return keys, args
}

func (x *RankIndex) rangeIDs(ctx context.Context, key string, offset, limit int64) ([]uint, error) {
	members, err := x.rdb.ZRevRange(ctx, key, offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取排序索引 %s 失败: %w", key, err)
	}
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("排序索引 %s 中存在无效成员 %q: %w", key, m, err)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
