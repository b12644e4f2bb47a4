// Package apperror はサービス共通のエラー分類を提供する。
//
// 各コンポーネントは最も具体的な Kind を持つ *Error を返し、
// HTTPハンドラ境界で Abort によってステータスコードとJSONボディに変換する。
package apperror
