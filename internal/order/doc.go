// Package order は注文サービスの内部実装を提供する。
//
// すべてのルートは DelegatedAuth の背後にあり、Gatewayの信頼ヘッダーを受け入れるか、
// ヘッダーが無ければAuthサービスに検証を委譲する。注文作成時には商品サービスから
// 価格を取得し、取得できない場合は価格と金額をnullのまま保存する。
// 注文は作成したユーザーだけが参照・キャンセルできる。
package order
