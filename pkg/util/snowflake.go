package util

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	snowNode *snowflake.Node
	snowOnce sync.Once
	snowErr  error
)

// InitSnowflake 初始化雪花节点（进程启动时调用一次）。
// 节点号从 SNOWFLAKE_NODE 读取，未设置时默认 1；多实例部署必须错开。
func InitSnowflake() error {
	snowOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = parsed
			}
		}
		snowNode, snowErr = snowflake.NewNode(nodeID)
	})
	return snowErr
}

// NextID 生成一个雪花 ID。
// 未初始化时惰性初始化，保证测试场景下开箱即用。
func NextID() int64 {
	if snowNode == nil {
		_ = InitSnowflake()
	}
	return snowNode.Generate().Int64()
}
