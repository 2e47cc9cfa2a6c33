package retry

import (
	"context"
	"errors"
	"fmt"
)

var statusMessages = map[int]string{
	429: "請求過於頻繁，請稍後再試",
	403: "存取被拒絕，請確認登入狀態",
	404: "資源不存在",
	500: "伺服器錯誤",
	502: "伺服器暫時無法連線",
	503: "服務暫時不可用",
	0:   "網路連線失敗，請檢查網路",
}

// ErrBodyTooLarge is returned when a response body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// StatusMessage returns the user-facing message for an HTTP status.
// Status 0 means no response was received.
func StatusMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("HTTP 錯誤 %d", status)
}

// HTTPError is a response the server sent but we could not accept.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, StatusMessage(e.Status))
}

// NetworkError is a request that never produced a usable response.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return StatusMessage(0)
	}
	return fmt.Sprintf("%s: %v", StatusMessage(0), e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FriendlyMessage maps any error from this package to a short user-facing string.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return StatusMessage(httpErr.Status)
	}
	if errors.Is(err, context.Canceled) {
		return "已取消"
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return StatusMessage(0)
	}
	return err.Error()
}
