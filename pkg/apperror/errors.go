package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はエラーの種類を表す。レスポンスの "code" フィールドにそのまま出力される。
type Kind string

const (
	// KindMissingFields は必須フィールドの欠落や不正なリクエストボディを表す。
	KindMissingFields Kind = "MISSING_FIELDS"
	// KindInvalidCredentials はユーザー名またはパスワードの不一致を表す。
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	// KindTokenInvalid はトークンの形式不正・署名不一致・期限切れを区別せずに表す。
	KindTokenInvalid Kind = "TOKEN_INVALID"
	// KindUnauthorized は認証情報そのものが無い、または検証できなかったことを表す。
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindForbidden は所有者不一致などの権限エラーを表す。
	KindForbidden Kind = "FORBIDDEN"
	// KindNotFound はリソースが存在しないことを表す。
	KindNotFound Kind = "NOT_FOUND"
	// KindRouteNotFound はGatewayのルーティング表に一致するルールが無いことを表す。
	KindRouteNotFound Kind = "ROUTE_NOT_FOUND"
	// KindConflict は識別子の重複を表す。
	KindConflict Kind = "CONFLICT"
	// KindTooManyRequests はレート制限超過を表す。
	KindTooManyRequests Kind = "TOO_MANY_REQUESTS"
	// KindMissingConfiguration は署名鍵などの必須設定が無いことを表す。
	KindMissingConfiguration Kind = "MISSING_CONFIGURATION"
	// KindInternal は想定外の内部エラーを表す。
	KindInternal Kind = "INTERNAL_ERROR"
	// KindBadGateway は上流サービスへの到達失敗・タイムアウトを表す。
	KindBadGateway Kind = "BAD_GATEWAY"
)

// HTTPStatus は Kind に対応するHTTPステータスコードを返す。
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMissingFields:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindTokenInvalid, KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound, KindRouteNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error は種類・メッセージ・原因を持つ構造化エラー。
type Error struct {
	// Kind はエラーの種類。
	Kind Kind
	// Message は利用者に返す人間向けのメッセージ。
	Message string
	// Cause は元になったエラー。
	Cause error
	// Details はレスポンスに追加で含める値。
	Details map[string]any
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap は原因のエラーを返す。errors.Is / errors.As で辿れるようにする。
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus はこのエラーのHTTPステータスコードを返す。
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// WithDetail は詳細情報を1件追加した新しい Error を返す。元の Error は変更しない。
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Cause: e.Cause, Details: details}
}

// New は新しい Error を生成する。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf はフォーマット付きメッセージで Error を生成する。
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap は既存のエラーを原因として持つ Error を生成する。
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// As はエラーチェーンから *Error を取り出す。
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf はエラーの種類を返す。*Error を含まないエラーは KindInternal とみなす。
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is はエラーが指定した種類かどうかを判定する。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
