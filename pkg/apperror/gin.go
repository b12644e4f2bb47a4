package apperror

import (
	"github.com/gin-gonic/gin"
)

// Body はエラーをレスポンスボディ用のマップに変換する。
// BadGateway と TokenInvalid では診断用に原因エラーの文字列を "error" に含める。
func Body(err error) gin.H {
	e, ok := As(err)
	if !ok {
		e = Wrap(err, KindInternal, "内部サーバーエラーが発生しました")
	}

	body := gin.H{
		"message": e.Message,
		"code":    string(e.Kind),
	}
	if e.Cause != nil && (e.Kind == KindBadGateway || e.Kind == KindTokenInvalid) {
		body["error"] = e.Cause.Error()
	}
	for k, v := range e.Details {
		if _, exists := body[k]; !exists {
			body[k] = v
		}
	}
	return body
}

// Abort はエラーに対応するステータスコードとJSONボディを書き込み、後続のハンドラを中断する。
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(KindOf(err).HTTPStatus(), Body(err))
}
