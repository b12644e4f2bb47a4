// Package config は各サービス共通の設定読み込みを提供する。
//
// 設定値はデフォルト値、CONFIG_FILE で指定したYAMLファイル、環境変数の順に
// 上書きされる。環境変数名は既存のデプロイ設定（PORT, JWT_SECRET, AUTH_URL など）
// をそのまま使う。
package config
