// Package data はSOA構成のデータサービスの内部実装を提供する。
//
// すべてのAPIはJWTをサービス自身で検証し、トークンのユーザー名が所有する項目だけを扱う。
package data
