package errs

import (
	"errors"
	"fmt"

	"DevTinder/consts"
)

// BizError 带业务码的错误。
// service 层返回 BizError，handler 层通过 Code 映射响应；
// 实时通道 handler 将其转为 message-error 帧而不是断开连接。
type BizError struct {
	Code    int32
	Message string
	Cause   error
}

func (e *BizError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BizError) Unwrap() error { return e.Cause }

// New 创建业务错误，消息取 consts 中该错误码的标准文案。
func New(code int32) error {
	return &BizError{Code: code, Message: consts.GetMessage(code)}
}

// NewWithMessage 创建业务错误并自定义消息。
func NewWithMessage(code int32, message string) error {
	return &BizError{Code: code, Message: message}
}

// Wrap 包装底层错误为业务错误（保留原始错误链用于日志）。
func Wrap(code int32, cause error) error {
	return &BizError{Code: code, Message: consts.GetMessage(code), Cause: cause}
}

// ExtractCode 提取业务错误码。
// 非业务错误一律归为服务器内部错误。
func ExtractCode(err error) int32 {
	if err == nil {
		return consts.CodeSuccess
	}
	var biz *BizError
	if errors.As(err, &biz) {
		return biz.Code
	}
	return consts.CodeInternalError
}

// ExtractMessage 提取面向用户的错误消息。
func ExtractMessage(err error) string {
	var biz *BizError
	if errors.As(err, &biz) {
		return biz.Message
	}
	return consts.GetMessage(consts.CodeInternalError)
}

// Is 判断错误是否携带指定业务码。
func Is(err error, code int32) bool {
	return ExtractCode(err) == code
}
