// Package timeline 维护单个会话内有序去重的消息序列。
// 客户端（或网关侧的会话视图）把三类来源合并到一条时间线上：
// - 拉取的历史分页；
// - 本地乐观插入的待确认消息；
// - 实时下行的 message-delivered 事件。
// 纯内存数据结构，不做任何 IO，调用方负责并发控制。
package timeline

import (
	"sort"
	"strings"
	"time"
)

// dedupWindow 与服务端消息追加的去重窗口保持一致：
// 同一发送者的相同内容在该窗口内视为同一条消息。
const dedupWindow = 2 * time.Second

// Entry 时间线上的一条消息。
// ID 为 0 表示乐观插入、尚未收到服务端确认的本地消息。
type Entry struct {
	ID        int64
	TempID    string // 客户端临时 ID，仅乐观消息持有
	Sender    string
	Content   string
	Timestamp time.Time
}

// item 内部存储结构，seq 记录插入顺序用于稳定排序。
type item struct {
	Entry
	seq int64
}

// Timeline 单个会话的消息序列，按时间升序排列。
type Timeline struct {
	items []item
	seq   int64
}

// New 创建空时间线。
func New() *Timeline {
	return &Timeline{}
}

// Len 返回当前条目数。
func (t *Timeline) Len() int { return len(t.items) }

// Entries 返回升序消息序列的拷贝。
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.items))
	for i := range t.items {
		out[i] = t.items[i].Entry
	}
	return out
}

// Insert 插入一条消息，重复消息静默丢弃。
// 判重规则：
// 1. 服务端 ID 相同即同一条消息；
// 2. 否则发送者相同、去空白后内容相同、时间差在去重窗口内视为重复。
// 返回是否实际插入。
func (t *Timeline) Insert(e Entry) bool {
	for i := range t.items {
		if isDuplicate(t.items[i].Entry, e) {
			// 带服务端 ID 的一侧信息更全，保留它
			if t.items[i].ID == 0 && e.ID != 0 {
				t.items[i].Entry = e
				t.resort()
			}
			return false
		}
	}

	t.seq++
	t.items = append(t.items, item{Entry: e, seq: t.seq})
	t.resort()
	return true
}

// Ack 将临时 ID 对应的乐观消息升级为已确认消息。
// 用于补偿 message-sent 回执与本地插入之间的竞态。
// 返回是否找到并升级了对应条目。
func (t *Timeline) Ack(tempID string, serverID int64, ts time.Time) bool {
	if tempID == "" {
		return false
	}
	for i := range t.items {
		if t.items[i].TempID == tempID && t.items[i].ID == 0 {
			t.items[i].ID = serverID
			if !ts.IsZero() {
				t.items[i].Timestamp = ts
			}
			t.resort()
			return true
		}
	}
	return false
}

// PrependHistory 回填一页更早的历史消息。
// 返回实际新增的条数，供 UI 修正滚动偏移。
func (t *Timeline) PrependHistory(page []Entry) int {
	inserted := 0
	for _, e := range page {
		if t.Insert(e) {
			inserted++
		}
	}
	return inserted
}

func isDuplicate(a, b Entry) bool {
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	if a.TempID != "" && a.TempID == b.TempID {
		return true
	}
	if a.Sender != b.Sender {
		return false
	}
	if strings.TrimSpace(a.Content) != strings.TrimSpace(b.Content) {
		return false
	}
	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= dedupWindow
}

// resort 按时间升序稳定排序，时间相同比较服务端 ID，
// 完全相同时保持插入顺序。
func (t *Timeline) resort() {
	sort.SliceStable(t.items, func(x, y int) bool {
		a, b := t.items[x], t.items[y]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.seq < b.seq
	})
}
