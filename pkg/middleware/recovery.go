package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"go.uber.org/zap"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレース付きでログを出力し、500エラーを返す。
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", GetRequestID(c)),
					zap.Any("panic", r),
					zap.StackSkip("stack", 2),
				)
				apperror.Abort(c, apperror.New(apperror.KindInternal, "内部サーバーエラーが発生しました"))
			}
		}()
		c.Next()
	}
}
