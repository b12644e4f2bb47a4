// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// Gatewayから各バックエンドへの転送、OrderサービスからProductサービスへの
// 商品照会、バックエンドからAuthサービスへのトークン検証など、
// サービス間の通信パターンを統一する。接続先ごとにキープアライブ接続を
// プールし、すべてのリクエストにタイムアウトを適用する。リトライは行わない。
package httpclient
