package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/httpclient"
)

// newFakeAuthServer はAuthサービスの /verify を模したテストサーバーを生成する。
// 呼び出し回数をcallsに記録する。
func newFakeAuthServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	router := gin.New()
	router.GET("/verify", func(c *gin.Context) {
		calls.Add(1)
		token, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "message": "token missing"})
			return
		}
		claims, err := ParseJWT(testSecret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, VerifyResponse{Valid: true, User: &VerifiedUser{
			ID:       claims.Subject,
			Subject:  claims.Subject,
			Username: claims.Username,
			Role:     claims.Role,
		}})
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

// newDelegatedRouter はDelegatedAuthを適用したテスト用ルーターを生成する。
func newDelegatedRouter(remote TokenVerifier) *gin.Engine {
	router := gin.New()
	router.Use(DelegatedAuth(remote))
	router.GET("/orders", func(c *gin.Context) {
		identity, _ := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"id": identity.ID, "username": identity.Username, "via": GetVia(c)})
	})
	return router
}

// TestDelegatedAuth はDelegatedAuthミドルウェアを検証する。
func TestDelegatedAuth(t *testing.T) {
	t.Parallel()

	t.Run("信頼ヘッダーがある場合はAuthサービスに問い合わせないこと", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		ts := newFakeAuthServer(t, &calls)
		router := newDelegatedRouter(NewRemoteVerifier(httpclient.New(ts.URL)))

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("x-user-id", "7")
		req.Header.Set("Authorization", "Bearer whatever")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if calls.Load() != 0 {
			t.Errorf("/verify の呼び出し回数 = %d, want 0", calls.Load())
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["id"] != "7" || body["via"] != ViaGateway {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("ベアラートークンのみの場合は/verifyを1回だけ呼ぶこと", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		ts := newFakeAuthServer(t, &calls)
		router := newDelegatedRouter(NewRemoteVerifier(httpclient.New(ts.URL)))

		tokenStr, _, err := GenerateJWT(testSecret, testIdentity, time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if calls.Load() != 1 {
			t.Errorf("/verify の呼び出し回数 = %d, want 1", calls.Load())
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["id"] != "1" || body["username"] != "mhs1" || body["via"] != ViaAuthVerify {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("/verifyが401を返した場合は401になること", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		ts := newFakeAuthServer(t, &calls)
		router := newDelegatedRouter(NewRemoteVerifier(httpclient.New(ts.URL)))

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer broken")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if calls.Load() != 1 {
			t.Errorf("/verify の呼び出し回数 = %d, want 1", calls.Load())
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if _, ok := body["detail"]; !ok {
			t.Error("Authサービスの応答がdetailに含まれていない")
		}
	})

	t.Run("Authサービスに到達できない場合は401になること", func(t *testing.T) {
		t.Parallel()

		router := newDelegatedRouter(NewRemoteVerifier(httpclient.New("http://127.0.0.1:1", httpclient.WithTimeout(time.Second))))

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer something")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("認証情報が無い場合は401になりAuthサービスに問い合わせないこと", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		ts := newFakeAuthServer(t, &calls)
		router := newDelegatedRouter(NewRemoteVerifier(httpclient.New(ts.URL)))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if calls.Load() != 0 {
			t.Errorf("/verify の呼び出し回数 = %d, want 0", calls.Load())
		}
	})

	t.Run("ローカル検証器が返したTokenInvalidはUnauthorizedに包まれること", func(t *testing.T) {
		t.Parallel()

		router := newDelegatedRouter(NewLocalVerifier(testSecret))

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer broken")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["code"] != string(apperror.KindUnauthorized) {
			t.Errorf("code = %v, want %s", body["code"], apperror.KindUnauthorized)
		}
	})
}

// TestGetUserID はGetUserID関数を検証する。
func TestGetUserID(t *testing.T) {
	t.Parallel()

	t.Run("本人情報が設定されている場合に取得できること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		SetIdentity(c, testIdentity, ViaGateway)

		if got := GetUserID(c); got != "1" {
			t.Errorf("GetUserID() = %q, want 1", got)
		}
		if got := GetVia(c); got != ViaGateway {
			t.Errorf("GetVia() = %q, want %q", got, ViaGateway)
		}
	})

	t.Run("設定されていない場合に空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetUserID(c); got != "" {
			t.Errorf("GetUserID() = %q, want empty string", got)
		}
		if _, ok := GetIdentity(c); ok {
			t.Error("GetIdentity() が ok=true を返した")
		}
	})
}
