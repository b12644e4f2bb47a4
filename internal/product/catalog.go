package product

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/store"
)

// Product は商品。
type Product struct {
	// ID は商品ID。作成順に1ずつ増える。
	ID int `json:"id"`
	// Name は商品名。
	Name string `json:"name"`
	// Price は価格。
	Price float64 `json:"price"`
}

// seedProducts は起動時に登録される商品。
var seedProducts = []Product{
	{ID: 1, Name: "Pulpen", Price: 5000},
	{ID: 2, Name: "Buku Tulis", Price: 12000},
}

// Catalog は商品のコレクション。並行アクセスしてよい。
type Catalog struct {
	products *store.Store[int, Product]
	lastID   atomic.Int64
}

// NewCatalog はシードデータを登録したCatalogを生成する。
func NewCatalog() *Catalog {
	c := &Catalog{products: store.New[int, Product]()}
	for _, p := range seedProducts {
		// シードのIDは重複しない
		_ = c.products.Insert(p.ID, p)
		if int64(p.ID) > c.lastID.Load() {
			c.lastID.Store(int64(p.ID))
		}
	}
	return c
}

// List は全商品を作成順に返す。
func (c *Catalog) List() []Product {
	return c.products.List()
}

// Get は商品を返す。
func (c *Catalog) Get(id int) (Product, error) {
	p, err := c.products.Get(id)
	if err != nil {
		return Product{}, apperror.Wrap(err, apperror.KindNotFound, "商品が見つかりません")
	}
	return p, nil
}

// Create は新しい商品を登録する。
func (c *Catalog) Create(name string, price float64) (Product, error) {
	p := Product{ID: int(c.lastID.Add(1)), Name: name, Price: price}
	if err := c.products.Insert(p.ID, p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Replace は商品の名前と価格を置き換える。
func (c *Catalog) Replace(id int, name string, price float64) (Product, error) {
	p, err := c.products.Update(id, func(p Product) (Product, error) {
		p.Name = name
		p.Price = price
		return p, nil
	})
	if err != nil {
		return Product{}, apperror.Wrap(err, apperror.KindNotFound, "商品が見つかりません")
	}
	return p, nil
}

// Delete は商品を削除し、削除した商品を返す。
func (c *Catalog) Delete(id int) (Product, error) {
	p, err := c.Get(id)
	if err != nil {
		return Product{}, err
	}
	if err := c.products.Delete(id); err != nil {
		return Product{}, apperror.Wrap(err, apperror.KindNotFound, "商品が見つかりません")
	}
	return p, nil
}

// productInput は作成・更新リクエストのボディ。
type productInput struct {
	Name  string          `json:"name"`
	Price json.RawMessage `json:"price"`
}

// validate は入力を検証し、商品名と価格を返す。
// 価格は数値または数値の文字列を受け付ける。
func (in productInput) validate() (string, float64, error) {
	name := strings.TrimSpace(in.Name)
	price, ok := parsePrice(in.Price)
	if name == "" || !ok {
		return "", 0, apperror.New(apperror.KindMissingFields, "name と price（数値）は必須です")
	}
	return name, price, nil
}

// parsePrice はJSONの数値または数値文字列を価格として解釈する。
func parsePrice(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
