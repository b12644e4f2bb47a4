// Package auth は認証サービスの内部実装を提供する。
//
// 固定のユーザー台帳（パスワードはbcryptハッシュで保持）に対して資格情報を照合し、
// HS256で署名したJWTを発行する。/verify は他サービスからの委譲検証を受け付け、
// トークンの本人情報を返す。
package auth
