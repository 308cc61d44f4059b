package common

import (
	"errors"
	"fmt"
)

// AppError 应用级错误结构
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code, message string, err error) error {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewError 创建新错误
func NewError(code, message string) error {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// CodeOf 取出错误链上第一个 AppError 的错误码
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// 错误码常量
const (
	ErrCodeContentSource   = "CONTENT_SOURCE_ERROR"
	ErrCodeGeneration      = "GENERATION_ERROR"
	ErrCodeDatabase        = "DATABASE_ERROR"
	ErrCodePublish         = "PUBLISH_ERROR"
	ErrCodeNotification    = "NOTIFICATION_ERROR"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeUnexpectedShape = "UNEXPECTED_SHAPE"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

var (
	// ErrNotFound 记录或帖子不存在
	ErrNotFound = errors.New("not found")
	// ErrMalformedReference 帖子 ID 或原帖引用格式不对
	ErrMalformedReference = errors.New("malformed reference")
	// ErrAlreadyResponded 该帖子在该配置下已有回复记录
	ErrAlreadyResponded = errors.New("already responded")
	// ErrUnexpectedShape 模型返回的内容结构不符合预期
	ErrUnexpectedShape = errors.New("unexpected response shape")
	// ErrReservationLost 占位记录不存在或令牌不匹配
	ErrReservationLost = errors.New("response reservation lost")
	// ErrReplyUnrecorded 回复已经发出，但没能确认落库
	ErrReplyUnrecorded = errors.New("reply published but not recorded")
)
