package store

import (
	"fmt"
	"sync"

	"github.com/nao1215/shopgate/pkg/apperror"
)

// Store はIDをキーとするスレッドセーフなインメモリコレクション。
// List は挿入順を保持する。
type Store[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
	keys  []K
}

// New は空の Store を生成する。
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{items: make(map[K]V)}
}

// Get は指定したIDの値を返す。存在しない場合は KindNotFound のエラーを返す。
func (s *Store[K, V]) Get(id K) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[id]
	if !ok {
		var zero V
		return zero, apperror.Newf(apperror.KindNotFound, "id=%v が見つかりません", id)
	}
	return v, nil
}

// List は全件を挿入順に返す。
func (s *Store[K, V]) List() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]V, 0, len(s.keys))
	for _, k := range s.keys {
		list = append(list, s.items[k])
	}
	return list
}

// Filter は条件に一致する値を挿入順に返す。
func (s *Store[K, V]) Filter(match func(V) bool) []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]V, 0)
	for _, k := range s.keys {
		if v := s.items[k]; match(v) {
			list = append(list, v)
		}
	}
	return list
}

// Insert は新しい値を追加する。IDが既に存在する場合は KindConflict のエラーを返す。
func (s *Store[K, V]) Insert(id K, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists {
		return apperror.Newf(apperror.KindConflict, "id=%v は既に存在します", id)
	}
	s.items[id] = v
	s.keys = append(s.keys, id)
	return nil
}

// Update は既存の値を fn の戻り値で置き換える。fn はロックを保持したまま呼ばれるため、
// 判定と更新の間に他の更新が割り込むことはない。fn がエラーを返した場合は値を変更しない。
func (s *Store[K, V]) Update(id K, fn func(V) (V, error)) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[id]
	if !ok {
		var zero V
		return zero, apperror.Newf(apperror.KindNotFound, "id=%v が見つかりません", id)
	}

	updated, err := fn(current)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("id=%v の更新に失敗: %w", id, err)
	}
	s.items[id] = updated
	return updated, nil
}

// Delete は指定したIDの値を削除する。存在しない場合は KindNotFound のエラーを返す。
func (s *Store[K, V]) Delete(id K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return apperror.Newf(apperror.KindNotFound, "id=%v が見つかりません", id)
	}
	delete(s.items, id)
	for i, k := range s.keys {
		if k == id {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return nil
}

// Len は件数を返す。
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
