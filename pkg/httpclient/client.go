package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout はタイムアウトを指定しない場合のリクエストタイムアウト。
const DefaultTimeout = 30 * time.Second

// Client はサービス間通信用のHTTPクライアント。
// 1つの接続先に対して1つ生成し、複数のゴルーチンから共有して使う。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
}

// Option はClientの設定を変更する関数。
type Option func(*Client)

// WithTimeout はリクエスト全体のタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithTransport は使用するトランスポートを設定する。
// 同じ接続先への透過プロキシと接続プールを共有する場合に使う。
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// NewTransport はキープアライブ接続をプールするトランスポートを生成する。
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://product:5001"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: NewTransport(),
		},
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL は接続先サービスのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout はリクエストタイムアウトを返す。
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Response は上流サービスのレスポンス。ステータスコードに関わらずそのまま保持する。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Header はレスポンスヘッダー。
	Header http.Header
	// Body はレスポンスボディ。
	Body []byte
}

// OK はステータスコードが2xxかどうかを返す。
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError は2xx以外のレスポンスを受け取ったことを表すエラー。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body []byte
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, string(e.Body))
}

// Do はリクエストを送信し、ステータスコードに関わらずレスポンスを返す。
// エラーを返すのは接続失敗・タイムアウトなど、レスポンスを受け取れなかった場合のみ。
// pathにはクエリ文字列を含めてよい。
func (c *Client) Do(ctx context.Context, method, path string, header http.Header, body []byte) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for key, values := range headersFromContext(ctx) {
		req.Header[key] = values
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// GetJSON は指定パスにGETリクエストを送信し、レスポンスボディをresultにデシリアライズする。
// 2xx以外のレスポンスは *StatusError として返す。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	header := http.Header{}
	header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, http.MethodGet, path, header, nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyHeaders はコンテキストに伝播用ヘッダーを格納するためのキー。
const contextKeyHeaders contextKey = "propagated_headers"

// WithHeaders はサービス間通信時に付与するヘッダーをコンテキストに設定する。
// 既に設定されているヘッダーとマージし、同じキーは上書きする。
func WithHeaders(ctx context.Context, h http.Header) context.Context {
	merged := headersFromContext(ctx).Clone()
	if merged == nil {
		merged = http.Header{}
	}
	for key, values := range h {
		merged[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	return context.WithValue(ctx, contextKeyHeaders, merged)
}

// headersFromContext はコンテキストに設定された伝播用ヘッダーを返す。
func headersFromContext(ctx context.Context) http.Header {
	h, _ := ctx.Value(contextKeyHeaders).(http.Header)
	return h
}
