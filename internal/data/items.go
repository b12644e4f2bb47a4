package data

import (
	"strings"
	"sync/atomic"

	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/store"
)

// Item はユーザーが所有するデータ項目。
type Item struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

var seedItems = []Item{
	{ID: 1, Name: "Data Rahasia A", Owner: "mhs1"},
	{ID: 2, Name: "Data Rahasia B", Owner: "mhs2"},
}

// Items は所有者付きデータ項目のコレクション。
type Items struct {
	items  *store.Store[int, Item]
	lastID atomic.Int64
}

// NewItems はシードデータを登録したItemsを生成する。
func NewItems() *Items {
	s := &Items{items: store.New[int, Item]()}
	for _, it := range seedItems {
		_ = s.items.Insert(it.ID, it)
		s.lastID.Store(int64(it.ID))
	}
	return s
}

// ListByOwner は所有者が一致する項目を作成順に返す。
func (s *Items) ListByOwner(owner string) []Item {
	return s.items.Filter(func(it Item) bool { return it.Owner == owner })
}

// Create は owner が所有する項目を追加する。
func (s *Items) Create(owner, name string) (Item, error) {
	if strings.TrimSpace(name) == "" {
		return Item{}, apperror.New(apperror.KindMissingFields, `"name" は必須です`)
	}
	it := Item{ID: int(s.lastID.Add(1)), Name: name, Owner: owner}
	if err := s.items.Insert(it.ID, it); err != nil {
		return Item{}, err
	}
	return it, nil
}
