package consts

// 通用错误码
const (
	CodeSuccess = 0 // 成功
)

// 客户端错误 (1xxxx)
const (
	CodeParamError       = 10001 // 参数验证失败
	CodeBodyError        = 10002 // 请求体格式错误
	CodeResourceNotFound = 10003 // 资源不存在
	CodeMethodNotAllowed = 10004 // 请求方法不允许
	CodeTooManyRequests  = 10005 // 请求过于频繁
)

// 认证错误 (2xxxx)
const (
	CodeUnauthorized = 20001 // 未认证
	CodeInvalidToken = 20002 // Token 无效
	CodeTokenExpired = 20003 // Token 已过期
)

// 用户模块错误 (11xxx)
const (
	CodeUserNotFound = 11001 // 用户不存在
)

// 连接模块错误 (12xxx)
const (
	CodeSelfConnection        = 12001 // 不能向自己发起连接
	CodeAlreadyConnected      = 12002 // 双方已建立连接
	CodeRequestAlreadySent    = 12003 // 连接请求已发送
	CodeRequestAlreadyInbound = 12004 // 对方已向你发起连接请求
	CodeNoSuchRequest         = 12005 // 不存在该连接请求
	CodeNotConnected          = 12006 // 双方未建立连接
)

// 消息模块错误 (13xxx)
const (
	CodeEmptyContent    = 13001 // 消息内容为空
	CodeMessageSendFail = 13002 // 消息发送失败
)

// 服务端错误 (3xxxx)
const (
	CodeInternalError      = 30001 // 服务器内部错误
	CodeServiceUnavailable = 30002 // 服务暂不可用
)

// 错误消息映射
var CodeMessage = map[int32]string{
	CodeSuccess: "success",

	// 客户端错误
	CodeParamError:       "参数验证失败",
	CodeBodyError:        "请求体格式错误",
	CodeResourceNotFound: "资源不存在",
	CodeMethodNotAllowed: "请求方法不允许",
	CodeTooManyRequests:  "请求过于频繁",

	// 认证错误
	CodeUnauthorized: "未认证",
	CodeInvalidToken: "Token 无效",
	CodeTokenExpired: "Token 已过期",

	// 用户模块
	CodeUserNotFound: "用户不存在",

	// 连接模块
	CodeSelfConnection:        "不能向自己发起连接",
	CodeAlreadyConnected:      "双方已建立连接",
	CodeRequestAlreadySent:    "连接请求已发送",
	CodeRequestAlreadyInbound: "对方已向你发起连接请求",
	CodeNoSuchRequest:         "不存在该连接请求",
	CodeNotConnected:          "双方未建立连接",

	// 消息模块
	CodeEmptyContent:    "消息内容为空",
	CodeMessageSendFail: "消息发送失败",

	// 服务端错误
	CodeInternalError:      "服务器内部错误",
	CodeServiceUnavailable: "服务暂不可用",
}

// GetMessage 根据错误码获取错误消息
func GetMessage(code int32) string {
	if msg, ok := CodeMessage[code]; ok {
		return msg
	}
	return "未知错误"
}

// IsNonServerError 判断是否为客户端/业务侧错误（非 3xxxx 服务端错误）
func IsNonServerError(code int) bool {
	return code > CodeSuccess && code < CodeInternalError
}
