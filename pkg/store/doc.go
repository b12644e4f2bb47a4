// Package store はバックエンドサービスのインメモリコレクションを提供する。
//
// 各サービスは配列を直接共有せず、ID をキーとした Store を通して
// 取得・一覧・追加・更新・削除を行う。Store は1つの RWMutex で保護され、
// 複数のゴルーチンから同時に利用できる。再起動すると内容は失われる。
package store
