package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// testProduct はテスト用のリクエスト/レスポンスペイロード。
type testProduct struct {
	// Name は商品名。
	Name string `json:"name"`
	// Price は価格。
	Price float64 `json:"price"`
}

// TestNew はNew関数でクライアントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("クライアントが正常に生成されること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:5001")
		if client.BaseURL() != "http://localhost:5001" {
			t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), "http://localhost:5001")
		}
		if client.Timeout() != DefaultTimeout {
			t.Errorf("Timeout() = %v, want %v", client.Timeout(), DefaultTimeout)
		}
	})

	t.Run("WithTimeoutでタイムアウトを変更できること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:4001", WithTimeout(12*time.Second))
		if client.Timeout() != 12*time.Second {
			t.Errorf("Timeout() = %v, want 12s", client.Timeout())
		}
	})

	t.Run("WithTransportで指定したトランスポートが使われること", func(t *testing.T) {
		t.Parallel()

		tr := NewTransport()
		client := New("http://localhost:5002", WithTransport(tr))
		if client.httpClient.Transport != tr {
			t.Error("指定したトランスポートが設定されていない")
		}
	})
}

// TestDo はDoがステータスコードに関わらずレスポンスを返すことを検証する。
func TestDo(t *testing.T) {
	t.Parallel()

	t.Run("4xxレスポンスもエラーにならずそのまま返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"Forbidden"}`))
		}))
		defer ts.Close()

		resp, err := New(ts.URL).Do(context.Background(), http.MethodGet, "/orders/abc", nil, nil)
		if err != nil {
			t.Fatalf("Do()でエラーが発生: %v", err)
		}
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", resp.StatusCode, http.StatusForbidden)
		}
		if resp.OK() {
			t.Error("403でOK()がtrueを返した")
		}
		if string(resp.Body) != `{"message":"Forbidden"}` {
			t.Errorf("Body = %q", string(resp.Body))
		}
		if resp.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
		}
	})

	t.Run("メソッド・パス・クエリ・ヘッダー・ボディが送信されること", func(t *testing.T) {
		t.Parallel()

		var (
			gotMethod string
			gotURI    string
			gotHeader string
			gotBody   []byte
		)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotURI = r.URL.RequestURI()
			gotHeader = r.Header.Get("X-User-Role")
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
		}))
		defer ts.Close()

		h := http.Header{}
		h.Set("X-User-Role", "student")
		resp, err := New(ts.URL).Do(context.Background(), http.MethodPatch, "/products/1?dry=1", h, []byte(`{"price":1}`))
		if err != nil {
			t.Fatalf("Do()でエラーが発生: %v", err)
		}
		if resp.StatusCode != http.StatusCreated {
			t.Errorf("ステータスコード: got %d, want %d", resp.StatusCode, http.StatusCreated)
		}
		if gotMethod != http.MethodPatch {
			t.Errorf("Method = %q, want PATCH", gotMethod)
		}
		if gotURI != "/products/1?dry=1" {
			t.Errorf("RequestURI = %q", gotURI)
		}
		if gotHeader != "student" {
			t.Errorf("X-User-Role = %q, want student", gotHeader)
		}
		if string(gotBody) != `{"price":1}` {
			t.Errorf("Body = %q", string(gotBody))
		}
	})

	t.Run("タイムアウトを超えるとエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(300 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		_, err := New(ts.URL, WithTimeout(50*time.Millisecond)).Do(context.Background(), http.MethodGet, "/", nil, nil)
		if err == nil {
			t.Fatal("Do()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("接続できないサーバーに対してエラーが返ること", func(t *testing.T) {
		t.Parallel()

		_, err := New("http://127.0.0.1:1").Do(context.Background(), http.MethodGet, "/", nil, nil)
		if err == nil {
			t.Fatal("Do()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestGetJSON はGetJSON関数を検証する。
func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("GETリクエストでレスポンスを取得でき、ボディは送信されないこと", func(t *testing.T) {
		t.Parallel()

		var gotBody []byte
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(testProduct{Name: "Pulpen", Price: 5000})
		}))
		defer ts.Close()

		var result testProduct
		if err := New(ts.URL).GetJSON(context.Background(), "/products/1", &result); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if result.Name != "Pulpen" {
			t.Errorf("result.Name = %q, want Pulpen", result.Name)
		}
		if len(gotBody) != 0 {
			t.Errorf("GETリクエストにボディが含まれている: %q", string(gotBody))
		}
	})

	t.Run("2xx以外はStatusErrorとして返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Produk tidak ditemukan"}`))
		}))
		defer ts.Close()

		err := New(ts.URL).GetJSON(context.Background(), "/products/99", nil)
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("StatusErrorが返るべき: %v", err)
		}
		if se.StatusCode != http.StatusNotFound || string(se.Body) != `{"message":"Produk tidak ditemukan"}` {
			t.Errorf("StatusError = %+v", se)
		}
	})

	t.Run("キャンセルされたコンテキストでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := New(ts.URL).GetJSON(ctx, "/products/1", nil); err == nil {
			t.Fatal("GetJSON()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("不正なJSONレスポンスでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{invalid json}`))
		}))
		defer ts.Close()

		var result testProduct
		if err := New(ts.URL).GetJSON(context.Background(), "/products/1", &result); err == nil {
			t.Fatal("GetJSON()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestWithHeaders はコンテキスト経由のヘッダー伝播を検証する。
func TestWithHeaders(t *testing.T) {
	t.Parallel()

	t.Run("WithHeadersで設定したヘッダーが伝播されること", func(t *testing.T) {
		t.Parallel()

		var gotID, gotRole string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotID = r.Header.Get("X-User-ID")
			gotRole = r.Header.Get("X-User-Role")
			w.Write([]byte(`{}`))
		}))
		defer ts.Close()

		ctx := WithHeaders(context.Background(), http.Header{"X-User-ID": []string{"1"}})
		ctx = WithHeaders(ctx, http.Header{"x-user-role": []string{"student"}})

		if err := New(ts.URL).GetJSON(ctx, "/orders", nil); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if gotID != "1" {
			t.Errorf("X-User-ID = %q, want 1", gotID)
		}
		if gotRole != "student" {
			t.Errorf("X-User-Role = %q, want student", gotRole)
		}
	})

	t.Run("設定していない場合はヘッダーが付与されないこと", func(t *testing.T) {
		t.Parallel()

		var present bool
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, present = r.Header["X-User-Id"]
			w.Write([]byte(`{}`))
		}))
		defer ts.Close()

		if err := New(ts.URL).GetJSON(context.Background(), "/orders", nil); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if present {
			t.Error("X-User-IDヘッダーが付与されている")
		}
	})

	t.Run("親コンテキストのヘッダーを変更しないこと", func(t *testing.T) {
		t.Parallel()

		parent := WithHeaders(context.Background(), http.Header{"X-User-ID": []string{"1"}})
		_ = WithHeaders(parent, http.Header{"X-User-ID": []string{"2"}})
		if got := headersFromContext(parent).Get("X-User-ID"); got != "1" {
			t.Errorf("親コンテキストのX-User-ID = %q, want 1", got)
		}
	})
}
