// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアと、
// サービス間の信頼委譲プロトコルを提供する。
//
// Gatewayはベアラートークンを一度だけ検証し、その結果を信頼ヘッダー
// （X-User-ID / X-User-Username / X-User-Role）としてバックエンドへ伝播する。
// バックエンドはDelegatedAuthで信頼ヘッダーを受け入れ、ヘッダーが無い場合に限り
// Authサービスの /verify に検証を委譲する。
//
// その他、JWTの発行と検証、リクエストID、構造化リクエストログ、
// パニックリカバリ、CORS、クライアントIP単位のレート制限を含む。
package middleware
