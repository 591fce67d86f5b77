package repository

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewestAnchoredWindow(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		page       int
		pageSize   int
		wantOffset int
		wantLimit  int
	}{
		{name: "空会话", total: 0, page: 1, pageSize: 50, wantOffset: 0, wantLimit: 0},
		{name: "第一页取最近的整页", total: 100, page: 1, pageSize: 50, wantOffset: 50, wantLimit: 50},
		{name: "第二页紧邻第一页", total: 100, page: 2, pageSize: 50, wantOffset: 0, wantLimit: 50},
		{name: "最旧一页不满", total: 101, page: 3, pageSize: 50, wantOffset: 0, wantLimit: 1},
		{name: "超出范围返回空窗口", total: 100, page: 3, pageSize: 50, wantOffset: 0, wantLimit: 0},
		{name: "总量不足一页", total: 7, page: 1, pageSize: 50, wantOffset: 0, wantLimit: 7},
		{name: "pageSize为1逐条翻页", total: 3, page: 2, pageSize: 1, wantOffset: 1, wantLimit: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, limit := newestAnchoredWindow(tt.total, tt.page, tt.pageSize)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}

// 从最旧一页翻到第一页，拼接结果必须还原整个会话：不缺页、不重页。
func TestNewestAnchoredWindowPageWalkReconstructsConversation(t *testing.T) {
	cases := []struct {
		total    int64
		pageSize int
	}{
		{total: 0, pageSize: 50},
		{total: 1, pageSize: 50},
		{total: 5, pageSize: 1},
		{total: 100, pageSize: 50},
		{total: 101, pageSize: 50},
		{total: 17, pageSize: 3},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("total=%d/pageSize=%d", tc.total, tc.pageSize), func(t *testing.T) {
			// 升序会话，元素即消息下标
			conversation := make([]int64, tc.total)
			for i := range conversation {
				conversation[i] = int64(i)
			}

			totalPages := tc.total / int64(tc.pageSize)
			if tc.total%int64(tc.pageSize) != 0 {
				totalPages++
			}

			rebuilt := make([]int64, 0, tc.total)
			for page := int(totalPages); page >= 1; page-- {
				offset, limit := newestAnchoredWindow(tc.total, page, tc.pageSize)
				require.LessOrEqual(t, limit, tc.pageSize)
				require.LessOrEqual(t, int64(offset+limit), tc.total)
				rebuilt = append(rebuilt, conversation[offset:offset+limit]...)
			}
			assert.Equal(t, conversation, rebuilt)

			// 翻过头的页不产生数据
			offset, limit := newestAnchoredWindow(tc.total, int(totalPages)+1, tc.pageSize)
			assert.Equal(t, 0, offset)
			assert.Equal(t, 0, limit)
		})
	}
}
