package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/metrics"
	"github.com/nao1215/shopgate/pkg/middleware"
	"go.uber.org/zap"
)

// UpstreamConfig は上流サービス1つ分の接続設定。
type UpstreamConfig struct {
	// URL はベースURL。
	URL string
	// Timeout はカスタム転送のタイムアウト。
	Timeout time.Duration
}

// upstream は上流サービスへの接続。カスタム転送とプロキシでトランスポートを共有する。
type upstream struct {
	name      string
	target    *url.URL
	transport *http.Transport
	client    *httpclient.Client
}

// Forwarder はルールに従ってリクエストを上流サービスへ転送する。
type Forwarder struct {
	upstreams map[string]*upstream
	// proxies はルール名をキーにしたリバースプロキシ。生成後は読み取り専用。
	proxies map[string]*httputil.ReverseProxy
	log     *zap.Logger
}

// forwardedHeaders はカスタム転送で上流へ引き継ぐヘッダー。
var forwardedHeaders = []string{
	"Authorization",
	middleware.HeaderUserID,
	middleware.HeaderUserUsername,
	middleware.HeaderUserRole,
	middleware.HeaderRequestID,
}

// UpstreamsFromConfig は設定から上流サービスの接続設定を組み立てる。
func UpstreamsFromConfig(cfg *config.Config) map[string]UpstreamConfig {
	return map[string]UpstreamConfig{
		UpstreamAuth:         {URL: cfg.Services.Auth, Timeout: cfg.Timeouts.Auth},
		UpstreamProduct:      {URL: cfg.Services.Product, Timeout: cfg.Timeouts.Product},
		UpstreamOrder:        {URL: cfg.Services.Order, Timeout: cfg.Timeouts.Order},
		UpstreamNotification: {URL: cfg.Services.Notification, Timeout: cfg.Timeouts.Notification},
		UpstreamData:         {URL: cfg.Services.Data, Timeout: cfg.Timeouts.Data},
	}
}

// NewForwarder は上流サービスごとに接続プールを1つ持つForwarderを生成する。
// rules のプロキシルールごとにリバースプロキシを用意する。
func NewForwarder(upstreams map[string]UpstreamConfig, rules []RouteRule, log *zap.Logger) (*Forwarder, error) {
	f := &Forwarder{
		upstreams: make(map[string]*upstream, len(upstreams)),
		proxies:   make(map[string]*httputil.ReverseProxy),
		log:       log,
	}
	for name, uc := range upstreams {
		target, err := url.Parse(uc.URL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("上流サービス %s のURLが不正です: %q", name, uc.URL)
		}
		transport := httpclient.NewTransport()
		opts := []httpclient.Option{httpclient.WithTransport(transport)}
		if uc.Timeout > 0 {
			opts = append(opts, httpclient.WithTimeout(uc.Timeout))
		}
		client := httpclient.New(strings.TrimSuffix(uc.URL, "/"), opts...)
		f.upstreams[name] = &upstream{
			name:      name,
			target:    target,
			transport: transport,
			client:    client,
		}
		log.Info("upstream registered",
			zap.String("upstream", name),
			zap.String("url", client.BaseURL()),
			zap.Duration("timeout", client.Timeout()),
		)
	}
	for _, rule := range rules {
		if rule.Mode != ModeProxy {
			continue
		}
		up, ok := f.upstreams[rule.Upstream]
		if !ok {
			return nil, fmt.Errorf("ルール %s の上流サービス %s が設定されていません", rule.Name, rule.Upstream)
		}
		f.proxies[rule.Name] = f.newReverseProxy(rule, up)
	}
	return f, nil
}

// Client は上流サービスのHTTPクライアントを返す。
func (f *Forwarder) Client(name string) (*httpclient.Client, bool) {
	up, ok := f.upstreams[name]
	if !ok {
		return nil, false
	}
	return up.client, true
}

// Forward はルールの転送方式でリクエストを転送し、上流のレスポンスをそのまま返す。
func (f *Forwarder) Forward(c *gin.Context, rule RouteRule) {
	up, ok := f.upstreams[rule.Upstream]
	if !ok {
		apperror.Abort(c, apperror.Newf(apperror.KindMissingConfiguration, "上流サービス %s が設定されていません", rule.Upstream))
		return
	}
	if rule.Mode == ModeProxy {
		f.proxy(c, rule)
		return
	}
	f.custom(c, rule, up)
}

// hasJSONBody はJSONボディを解釈し直すメソッドかどうかを返す。
func hasJSONBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// reencodeJSON はJSONボディを解釈してエンコードし直す。空のボディは {} として扱う。
func reencodeJSON(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte(`{}`), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("JSONの後ろに余分なデータがあります")
	}
	return json.Marshal(v)
}

// custom はHTTPクライアントで転送する。
func (f *Forwarder) custom(c *gin.Context, rule RouteRule, up *upstream) {
	header := http.Header{}
	var body []byte
	if hasJSONBody(c.Request.Method) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindMissingFields, "リクエストボディを読み取れません"))
			return
		}
		body, err = reencodeJSON(raw)
		if err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindMissingFields, "リクエストボディのJSONが不正です"))
			return
		}
		header.Set("Content-Type", "application/json")
	}
	for _, key := range forwardedHeaders {
		if v := c.GetHeader(key); v != "" {
			header.Set(key, v)
		}
	}

	path := rule.UpstreamPath
	if q := c.Request.URL.RawQuery; q != "" {
		path += "?" + q
	}

	ctx := c.Request.Context()
	if rule.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rule.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := up.client.Do(ctx, c.Request.Method, path, header, body)
	if err != nil {
		metrics.ObserveUpstream(up.name, string(ModeCustom), 0, time.Since(start))
		f.log.Warn("upstream request failed",
			zap.String("route", rule.Name),
			zap.String("upstream", up.name),
			zap.Error(err),
		)
		apperror.Abort(c, apperror.Wrap(err, apperror.KindBadGateway, fmt.Sprintf("%s サービスへの転送に失敗しました", up.name)))
		return
	}
	metrics.ObserveUpstream(up.name, string(ModeCustom), resp.StatusCode, time.Since(start))

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

// startKey は転送開始時刻を格納するコンテキストキー。
type startKey struct{}

func elapsedSince(ctx context.Context) time.Duration {
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}

// newReverseProxy はルールのプレフィックスを書き換えて中継するリバースプロキシを生成する。
func (f *Forwarder) newReverseProxy(rule RouteRule, up *upstream) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(up.target)
			pr.Out.URL.Path = strings.TrimSuffix(up.target.Path, "/") + rule.rewritePath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetXForwarded()
		},
		Transport: up.transport,
		ModifyResponse: func(resp *http.Response) error {
			// GatewayがすでにX-Request-IDを付与している
			resp.Header.Del(middleware.HeaderRequestID)
			metrics.ObserveUpstream(up.name, string(ModeProxy), resp.StatusCode, elapsedSince(resp.Request.Context()))
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			metrics.ObserveUpstream(up.name, string(ModeProxy), 0, elapsedSince(r.Context()))
			f.log.Warn("upstream proxy failed",
				zap.String("route", rule.Name),
				zap.String("upstream", up.name),
				zap.Error(err),
			)
			appErr := apperror.Wrap(err, apperror.KindBadGateway, fmt.Sprintf("%s サービスへの転送に失敗しました", up.name))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(appErr.HTTPStatus())
			_ = json.NewEncoder(w).Encode(apperror.Body(appErr))
		},
	}
}

// proxy はリバースプロキシで中継する。
func (f *Forwarder) proxy(c *gin.Context, rule RouteRule) {
	rp, ok := f.proxies[rule.Name]
	if !ok {
		apperror.Abort(c, apperror.Newf(apperror.KindMissingConfiguration, "ルール %s のプロキシが設定されていません", rule.Name))
		return
	}
	ctx := context.WithValue(c.Request.Context(), startKey{}, time.Now())
	if rule.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rule.Timeout)
		defer cancel()
	}
	rp.ServeHTTP(c.Writer, c.Request.WithContext(ctx))
}
