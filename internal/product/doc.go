// Package product は商品サービスの内部実装を提供する。
//
// 商品をインメモリで保持し、一覧・詳細・作成・更新・削除のAPIを公開する。
// 再起動するとシードデータの状態に戻る。
package product
