package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ConversationKey 计算两个用户之间会话的规范标识。
// 规则：参与者 uuid 排序后以 "$" 拼接再做 sha256，保证与参数顺序无关。
// 存储分组与实时投递寻址必须使用同一个派生结果，不允许各自再造。
func ConversationKey(userA, userB string) string {
	pair := []string{userA, userB}
	if pair[0] > pair[1] {
		pair[0], pair[1] = pair[1], pair[0]
	}
	sum := sha256.Sum256([]byte(strings.Join(pair, "$")))
	return hex.EncodeToString(sum[:])
}
