package auction

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCode is the reported outcome code. The empty code means "no error"
// and encodes as JSON null.
type ErrorCode string

// Error taxonomy reported to callers.
const (
	ErrInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrRemoteHTTP403          ErrorCode = "REMOTE_HTTP_403"
	ErrCaptchaDetected        ErrorCode = "CAPTCHA_DETECTED"
	ErrRemoteHTTP404          ErrorCode = "REMOTE_HTTP_404"
	ErrRemoteHTTP500          ErrorCode = "REMOTE_HTTP_500"
	ErrRemoteHTTP             ErrorCode = "REMOTE_HTTP_ERROR"
	ErrTimeout                ErrorCode = "TIMEOUT"
	ErrAttachmentNone         ErrorCode = "ATTACHMENT_NONE"
	ErrAttachmentDownloadFail ErrorCode = "ATTACHMENT_DOWNLOAD_FAIL"
	ErrParseEmpty             ErrorCode = "PARSE_EMPTY"
	ErrUnknown                ErrorCode = "UNKNOWN"
)

var hints = map[ErrorCode]string{
	ErrInvalidInput:           "URL/사건번호 형식이 올바르지 않습니다(예: 2024-05180-001 또는 onbid:1234567).",
	ErrRemoteHTTP403:          "원격 서버가 차단(403)했습니다. 잠시 후 재시도하거나 사건번호로 시도하세요.",
	ErrCaptchaDetected:        "CAPTCHA가 감지되었습니다. 잠시 후 재시도하거나 사건번호로 시도하세요.",
	ErrRemoteHTTP404:          "원격 서버에서 해당 사건을 찾을 수 없습니다(404).",
	ErrRemoteHTTP500:          "원격 서버 내부 오류(500)입니다. 잠시 후 재시도하세요.",
	ErrRemoteHTTP:             "모든 상세 페이지 후보에서 유효한 문서를 받지 못했습니다.",
	ErrTimeout:                "요청 시간이 초과되었습니다. 네트워크 상태를 확인하세요.",
	ErrAttachmentNone:         "첨부 미게시 상태(입찰준비중일 수 있음). 최소정보로 진행합니다.",
	ErrAttachmentDownloadFail: "첨부 다운로드에 실패했습니다. 네트워크 확인 후 재시도하세요.",
	ErrParseEmpty:             "문서에서 필요한 정보를 찾지 못했습니다(형식 변경 가능).",
	ErrUnknown:                "알 수 없는 오류. 로그를 확인하세요.",
}

// Hint returns the human-readable message for a code.
func Hint(code ErrorCode) string {
	if h, ok := hints[code]; ok {
		return h
	}
	return "원격 서버 응답 오류(" + string(code) + ")입니다."
}

// RemoteHTTPCode maps a non-200 upstream status to its error code.
func RemoteHTTPCode(status int) ErrorCode {
	switch {
	case status == http.StatusForbidden:
		return ErrRemoteHTTP403
	case status == http.StatusNotFound:
		return ErrRemoteHTTP404
	case status >= http.StatusInternalServerError:
		return ErrRemoteHTTP500
	default:
		return ErrorCode(fmt.Sprintf("REMOTE_HTTP_%d", status))
	}
}

// IsBlocking reports whether the upstream actively refused the request.
func (c ErrorCode) IsBlocking() bool {
	return c == ErrRemoteHTTP403 || c == ErrCaptchaDetected
}

// MarshalJSON encodes the empty code as null.
func (c ErrorCode) MarshalJSON() ([]byte, error) {
	if c == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

// UnmarshalJSON accepts null or a string code.
func (c *ErrorCode) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode error code: %w", err)
	}
	if raw == nil {
		*c = ""
		return nil
	}
	*c = ErrorCode(*raw)
	return nil
}
