// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 固定のルーティング表に従い、リクエストを内部サービスへ転送する。
// 認証が必要なルールではトークンを1回だけ検証し、本人情報を信頼ヘッダー
// （X-User-ID, X-User-Username, X-User-Role）として付与する。クライアントが送った
// 信頼ヘッダーはすべてのルートで取り除く。
//
// 転送方式は2種類ある。カスタム転送はJSONボディを解釈し直して送り、
// プロキシは httputil.ReverseProxy でパスのプレフィックスを書き換えて中継する。
// どちらも上流サービスごとに1つの接続プールを共有する。
package gateway
