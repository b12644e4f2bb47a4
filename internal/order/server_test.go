package order

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/middleware"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubVerifier は呼び出し回数を数えるテスト用の検証器。
type stubVerifier struct {
	calls    atomic.Int32
	identity middleware.Identity
	err      error
}

func (v *stubVerifier) Verify(_ context.Context, _ string) (middleware.Identity, error) {
	v.calls.Add(1)
	return v.identity, v.err
}

// stubPrices は固定の価格を返すテスト用のPriceLookup。
type stubPrices map[string]float64

func (p stubPrices) Price(_ context.Context, productID string) *float64 {
	price, ok := p[productID]
	if !ok {
		return nil
	}
	return &price
}

// newTestServer はテスト用の注文サーバーを生成する。
func newTestServer(v middleware.TokenVerifier) *Server {
	return newServer("0", "http://localhost:3000", zap.NewNop(), v, stubPrices{"1": 5000})
}

// do はサーバーにリクエストを送る。userIDが空でなければ信頼ヘッダーを付与する。
func do(s *Server, method, path, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("x-user-id", userID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// decodeOrder はレスポンスボディを注文としてパースする。
func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) Order {
	t.Helper()
	var o Order
	if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v, body=%s", err, w.Body.String())
	}
	return o
}

// TestHandleCreate は POST /orders を検証する。
func TestHandleCreate(t *testing.T) {
	t.Parallel()

	t.Run("信頼ヘッダー付きで作成すると価格と金額が計算されること", func(t *testing.T) {
		t.Parallel()

		v := &stubVerifier{}
		s := newTestServer(v)
		w := do(s, http.MethodPost, "/orders", `{"productId":"1","quantity":2}`, "7")

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		o := decodeOrder(t, w)
		if o.UserID != "7" || o.ProductID != "1" || o.Quantity != 2 {
			t.Errorf("order = %+v", o)
		}
		if o.Price == nil || *o.Price != 5000 || o.Amount == nil || *o.Amount != 10000 {
			t.Errorf("price = %v, amount = %v", o.Price, o.Amount)
		}
		if o.Status != StatusCreated || o.VerifiedBy != middleware.ViaGateway {
			t.Errorf("status = %s, verifiedBy = %s", o.Status, o.VerifiedBy)
		}
		if o.ID == "" || o.CreatedAt.IsZero() || !o.CreatedAt.Equal(o.UpdatedAt) {
			t.Errorf("id = %q, createdAt = %v, updatedAt = %v", o.ID, o.CreatedAt, o.UpdatedAt)
		}
		if v.calls.Load() != 0 {
			t.Errorf("検証器の呼び出し回数 = %d, want 0", v.calls.Load())
		}
	})

	t.Run("価格を取得できない場合はpriceとamountがnullになること", func(t *testing.T) {
		t.Parallel()

		w := do(newTestServer(&stubVerifier{}), http.MethodPost, "/orders", `{"productId":42,"quantity":"3","notes":"hadiah"}`, "7")
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusCreated)
		}
		var raw map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if raw["price"] != nil || raw["amount"] != nil {
			t.Errorf("price = %v, amount = %v; want null", raw["price"], raw["amount"])
		}
		if raw["productId"] != "42" || raw["notes"] != "hadiah" || raw["quantity"] != float64(3) {
			t.Errorf("body = %v", raw)
		}
	})

	t.Run("ベアラートークンのみの場合は検証器を1回呼びverifiedByがauth-verifyになること", func(t *testing.T) {
		t.Parallel()

		v := &stubVerifier{identity: middleware.Identity{ID: "1", Username: "mhs1"}}
		s := newTestServer(v)
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"productId":"1","quantity":1}`))
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusCreated)
		}
		if o := decodeOrder(t, w); o.VerifiedBy != middleware.ViaAuthVerify || o.UserID != "1" {
			t.Errorf("order = %+v", o)
		}
		if v.calls.Load() != 1 {
			t.Errorf("検証器の呼び出し回数 = %d, want 1", v.calls.Load())
		}
	})

	t.Run("認証情報が無い場合は401になること", func(t *testing.T) {
		t.Parallel()

		w := do(newTestServer(&stubVerifier{}), http.MethodPost, "/orders", `{"productId":"1","quantity":1}`, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "productIdが無い", body: `{"quantity":1}`},
		{name: "productIdが真偽値", body: `{"productId":true,"quantity":1}`},
		{name: "productIdが数値の0", body: `{"productId":0,"quantity":1}`},
		{name: "productIdが0.0", body: `{"productId":0.0,"quantity":1}`},
		{name: "productIdが-0", body: `{"productId":-0,"quantity":1}`},
		{name: "quantityが0", body: `{"productId":"1","quantity":0}`},
		{name: "quantityが負数", body: `{"productId":"1","quantity":-2}`},
		{name: "quantityが数値でない", body: `{"productId":"1","quantity":"abc"}`},
		{name: "quantityが小数", body: `{"productId":"1","quantity":1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name+"場合は400になること", func(t *testing.T) {
			t.Parallel()

			w := do(newTestServer(&stubVerifier{}), http.MethodPost, "/orders", tt.body, "7")
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

// TestOwnership は注文の所有者チェックを検証する。
func TestOwnership(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubVerifier{})
	created := decodeOrder(t, do(s, http.MethodPost, "/orders", `{"productId":"1","quantity":1}`, "7"))

	t.Run("自分の注文だけが一覧に含まれること", func(t *testing.T) {
		var body struct {
			Data []Order `json:"data"`
		}
		w := do(s, http.MethodGet, "/orders", "", "8")
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if len(body.Data) != 0 {
			t.Errorf("他人の一覧の件数 = %d, want 0", len(body.Data))
		}

		w = do(s, http.MethodGet, "/orders", "", "7")
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if len(body.Data) != 1 || body.Data[0].ID != created.ID {
			t.Errorf("一覧 = %+v", body.Data)
		}
	})

	t.Run("他人の注文の詳細は403で存在しない注文は404になること", func(t *testing.T) {
		if w := do(s, http.MethodGet, "/orders/"+created.ID, "", "8"); w.Code != http.StatusForbidden {
			t.Errorf("他人の注文: got %d, want %d", w.Code, http.StatusForbidden)
		}
		if w := do(s, http.MethodGet, "/orders/missing", "", "7"); w.Code != http.StatusNotFound {
			t.Errorf("存在しない注文: got %d, want %d", w.Code, http.StatusNotFound)
		}
		if w := do(s, http.MethodGet, "/orders/"+created.ID, "", "7"); w.Code != http.StatusOK {
			t.Errorf("自分の注文: got %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("他人の注文をキャンセルすると403になり状態が変わらないこと", func(t *testing.T) {
		w := do(s, http.MethodPatch, "/orders/"+created.ID+"/cancel", "", "8")
		if w.Code != http.StatusForbidden {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if body["code"] != string(apperror.KindForbidden) {
			t.Errorf("code = %v", body["code"])
		}

		o := decodeOrder(t, do(s, http.MethodGet, "/orders/"+created.ID, "", "7"))
		if o.Status != StatusCreated {
			t.Errorf("status = %s, want %s", o.Status, StatusCreated)
		}
	})

	t.Run("自分の注文をキャンセルするとCANCELEDになること", func(t *testing.T) {
		w := do(s, http.MethodPatch, "/orders/"+created.ID+"/cancel", "", "7")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		o := decodeOrder(t, w)
		if o.Status != StatusCanceled {
			t.Errorf("status = %s, want %s", o.Status, StatusCanceled)
		}
		if !o.UpdatedAt.After(o.CreatedAt) && !o.UpdatedAt.Equal(o.CreatedAt) {
			t.Errorf("updatedAt = %v, createdAt = %v", o.UpdatedAt, o.CreatedAt)
		}
		if w := do(s, http.MethodPatch, "/orders/missing/cancel", "", "7"); w.Code != http.StatusNotFound {
			t.Errorf("存在しない注文のキャンセル: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestNoRoute は未定義ルートの404を検証する。
func TestNoRoute(t *testing.T) {
	t.Parallel()

	w := do(newTestServer(&stubVerifier{}), http.MethodGet, "/unknown?x=1", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if body["path"] != "/unknown?x=1" || body["message"] == "" {
		t.Errorf("body = %v", body)
	}
}

// TestParseProductID は商品IDの解釈を検証する。
func TestParseProductID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{name: "文字列", raw: `"1"`, want: "1", wantOK: true},
		{name: "整数", raw: `42`, want: "42", wantOK: true},
		{name: "小数点付きの整数", raw: `1.0`, want: "1", wantOK: true},
		{name: "0", raw: `0`, wantOK: false},
		{name: "0.0", raw: `0.0`, wantOK: false},
		{name: "-0", raw: `-0`, wantOK: false},
		{name: "null", raw: `null`, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseProductID(json.RawMessage(tt.raw))
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseProductID(%s) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestCreateForwardsHeadersToProductService は価格照会に本人情報とリクエストIDが引き継がれることを検証する。
func TestCreateForwardsHeadersToProductService(t *testing.T) {
	t.Parallel()

	var gotUserID, gotRequestID string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = r.Header.Get(middleware.HeaderUserID)
		gotRequestID = r.Header.Get(middleware.HeaderRequestID)
		w.Write([]byte(`{"id":1,"name":"Pulpen","price":5000}`))
	}))
	defer ts.Close()

	s := newServer("0", "http://localhost:3000", zap.NewNop(), &stubVerifier{},
		&productClient{client: httpclient.New(ts.URL), log: zap.NewNop()})

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"productId":"1","quantity":2}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "7")
	req.Header.Set(middleware.HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusCreated)
	}
	if o := decodeOrder(t, w); o.Amount == nil || *o.Amount != 10000 {
		t.Errorf("amount = %v, want 10000", o.Amount)
	}
	if gotUserID != "7" || gotRequestID != "req-42" {
		t.Errorf("転送されたヘッダー: X-User-ID=%q X-Request-ID=%q", gotUserID, gotRequestID)
	}
}

// TestProductClient は商品サービスからの価格取得を検証する。
func TestProductClient(t *testing.T) {
	t.Parallel()

	var gotUserID, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = r.Header.Get("X-User-ID")
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/products/1":
			w.Write([]byte(`{"id":1,"name":"Pulpen","price":5000}`))
		case "/products/broken":
			w.Write([]byte(`{`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"not found"}`))
		}
	}))
	defer ts.Close()

	p := &productClient{client: httpclient.New(ts.URL), log: zap.NewNop()}
	h := http.Header{}
	h.Set("Authorization", "Bearer tok")
	h.Set("X-User-ID", "7")

	price := p.Price(httpclient.WithHeaders(context.Background(), h), "1")
	if price == nil || *price != 5000 {
		t.Fatalf("Price(1) = %v, want 5000", price)
	}
	if gotUserID != "7" || gotAuth != "Bearer tok" {
		t.Errorf("転送されたヘッダー: X-User-ID=%q Authorization=%q", gotUserID, gotAuth)
	}
	if got := p.Price(context.Background(), "99"); got != nil {
		t.Errorf("Price(99) = %v, want nil", *got)
	}
	if got := p.Price(context.Background(), "broken"); got != nil {
		t.Errorf("Price(broken) = %v, want nil", *got)
	}

	unreachable := &productClient{client: httpclient.New("http://127.0.0.1:1"), log: zap.NewNop()}
	if got := unreachable.Price(context.Background(), "1"); got != nil {
		t.Errorf("到達できない場合 = %v, want nil", *got)
	}
}
