// Package notification は通知サービスの内部実装を提供する。
//
// 通知はプロセス内のインメモリSQLiteに保存され、再起動すると消える。
// スキーマは埋め込みのマイグレーションで作成する。通知先はGatewayが伝播する
// X-User-Username（無ければ X-User-ID）で判定する。
package notification
