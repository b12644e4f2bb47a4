package order

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/middleware"
	"github.com/nao1215/shopgate/pkg/store"
)

// Status は注文の状態。
type Status string

const (
	// StatusCreated は作成済み。
	StatusCreated Status = "CREATED"
	// StatusCanceled はキャンセル済み。
	StatusCanceled Status = "CANCELED"
)

// Order は注文。
type Order struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ProductID  string    `json:"productId"`
	Quantity   int       `json:"quantity"`
	Notes      *string   `json:"notes"`
	Price      *float64  `json:"price"`
	Amount     *float64  `json:"amount"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	VerifiedBy string    `json:"verifiedBy"`
}

// createInput は注文作成リクエストのボディ。
type createInput struct {
	ProductID json.RawMessage `json:"productId"`
	Quantity  json.RawMessage `json:"quantity"`
	Notes     string          `json:"notes"`
}

// validate は入力を検証し、商品IDと数量を返す。
// 商品IDは文字列または数値、数量は正の整数（数値の文字列も可）を受け付ける。
func (in createInput) validate() (string, int, error) {
	productID, ok := parseProductID(in.ProductID)
	if !ok {
		return "", 0, apperror.New(apperror.KindMissingFields, "productId は必須です")
	}
	qty, ok := parseQuantity(in.Quantity)
	if !ok {
		return "", 0, apperror.New(apperror.KindMissingFields, "quantity は必須です（1以上の整数）")
	}
	return productID, qty, nil
}

func parseProductID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	// 数値の0（0.0, -0 を含む）は未指定として扱う
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f == 0 {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

func parseQuantity(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// Book は注文のコレクション。並行アクセスしてよい。
type Book struct {
	orders *store.Store[string, Order]
	now    func() time.Time
}

// NewBook は空のBookを生成する。
func NewBook() *Book {
	return &Book{orders: store.New[string, Order](), now: func() time.Time { return time.Now().UTC() }}
}

// Create は注文を作成する。priceがnilの場合は金額もnilになる。
func (b *Book) Create(identity middleware.Identity, via, productID string, qty int, notes string, price *float64) (Order, error) {
	now := b.now()
	o := Order{
		ID:         uuid.NewString(),
		UserID:     identity.ID,
		ProductID:  productID,
		Quantity:   qty,
		Price:      price,
		Status:     StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
		VerifiedBy: via,
	}
	if notes != "" {
		o.Notes = &notes
	}
	if price != nil {
		amount := *price * float64(qty)
		o.Amount = &amount
	}
	if err := b.orders.Insert(o.ID, o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListByUser はユーザーの注文を作成順に返す。
func (b *Book) ListByUser(userID string) []Order {
	return b.orders.Filter(func(o Order) bool { return o.UserID == userID })
}

// Get はユーザーが所有する注文を返す。
// 存在しなければ NotFound、他人の注文なら Forbidden を返す。
func (b *Book) Get(id, userID string) (Order, error) {
	o, err := b.orders.Get(id)
	if err != nil {
		return Order{}, apperror.Wrap(err, apperror.KindNotFound, "注文が見つかりません")
	}
	if o.UserID != userID {
		return Order{}, apperror.New(apperror.KindForbidden, "Forbidden")
	}
	return o, nil
}

// Cancel はユーザーが所有する注文をキャンセルする。
// 他人の注文は Forbidden を返し、状態を変更しない。
func (b *Book) Cancel(id, userID string) (Order, error) {
	o, err := b.orders.Update(id, func(o Order) (Order, error) {
		if o.UserID != userID {
			return o, apperror.New(apperror.KindForbidden, "Forbidden")
		}
		o.Status = StatusCanceled
		o.UpdatedAt = b.now()
		return o, nil
	})
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return Order{}, apperror.Wrap(err, apperror.KindNotFound, "注文が見つかりません")
		}
		return Order{}, err
	}
	return o, nil
}
