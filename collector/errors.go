package collector

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable 网络失败或非200响应
	ErrRemoteUnavailable = errors.New("远端服务不可用")
	// ErrMalformedResponse 响应体不是合法JSON
	ErrMalformedResponse = errors.New("远端响应格式错误")
	// ErrNotFound 远端不存在该视频
	ErrNotFound = errors.New("远端视频不存在")
)

// UnavailableError 请求失败，StatusCode 为0表示传输层错误
type UnavailableError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("请求失败: %s 返回状态码 %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("请求失败: %s: %v", e.URL, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrRemoteUnavailable }

// MalformedResponseError JSON解析失败
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("JSON解析失败: %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }
