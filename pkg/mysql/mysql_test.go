package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 唯一索引冲突依赖 gorm 的方言错误翻译：
// 关闭时 MySQL 1062 以驱动原始错误透出，errors.Is(err, gorm.ErrDuplicatedKey) 恒为 false，
// 上层的"重复请求"语义会退化成内部错误。
func TestGormConfigTranslatesDriverErrors(t *testing.T) {
	cfg := gormConfig()

	require.NotNil(t, cfg)
	assert.True(t, cfg.TranslateError)
	assert.NotNil(t, cfg.Logger)
}
