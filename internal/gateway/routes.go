package gateway

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nao1215/shopgate/pkg/apperror"
)

// Mode は転送方式。
type Mode string

const (
	// ModeCustom はボディを解釈し直してHTTPクライアントで転送する方式。
	ModeCustom Mode = "custom"
	// ModeProxy はリバースプロキシでそのまま中継する方式。
	ModeProxy Mode = "proxy"
)

// 上流サービス名。
const (
	UpstreamAuth         = "auth"
	UpstreamProduct      = "product"
	UpstreamOrder        = "order"
	UpstreamNotification = "notification"
	UpstreamData         = "data"
)

// RouteRule はGatewayのルーティングルール。
type RouteRule struct {
	// Name はメトリクスとログに使うルール名。
	Name string
	// Method はカスタム転送で一致させるHTTPメソッド。プロキシでは空（全メソッド）。
	Method string
	// Pattern はカスタム転送では完全一致のパス、プロキシではパスのプレフィックス。
	Pattern string
	// RequiresAuth は転送前にトークン検証が必要かどうか。
	RequiresAuth bool
	// Upstream は転送先サービス名。
	Upstream string
	// UpstreamPath はカスタム転送の転送先パス。
	UpstreamPath string
	// Rewrite はプロキシで Pattern を置き換えるプレフィックス。
	Rewrite string
	// Mode は転送方式。
	Mode Mode
	// Timeout は1回の転送に許す時間。
	Timeout time.Duration
}

// rewritePath はプロキシ転送先のパスを返す。
func (r RouteRule) rewritePath(path string) string {
	return r.Rewrite + strings.TrimPrefix(path, r.Pattern)
}

// defaultRoutes は固定のルーティング表。
func defaultRoutes() []RouteRule {
	return []RouteRule{
		{Name: "auth-login", Method: http.MethodPost, Pattern: "/auth/login", Upstream: UpstreamAuth, UpstreamPath: "/login", Mode: ModeCustom},
		// トークンはAuthサービス自身が検証する
		{Name: "auth-verify", Method: http.MethodGet, Pattern: "/auth/verify", Upstream: UpstreamAuth, UpstreamPath: "/verify", Mode: ModeCustom},

		{Name: "products-create", Method: http.MethodPost, Pattern: "/api/products", RequiresAuth: true, Upstream: UpstreamProduct, UpstreamPath: "/products", Mode: ModeCustom},
		{Name: "products", Pattern: "/api/products", RequiresAuth: true, Upstream: UpstreamProduct, Rewrite: "/products", Mode: ModeProxy},

		{Name: "orders-create", Method: http.MethodPost, Pattern: "/api/orders", RequiresAuth: true, Upstream: UpstreamOrder, UpstreamPath: "/orders", Mode: ModeCustom},
		{Name: "orders", Pattern: "/api/orders", RequiresAuth: true, Upstream: UpstreamOrder, Rewrite: "/orders", Mode: ModeProxy},

		{Name: "notifications-notify", Method: http.MethodPost, Pattern: "/api/notifications/notify", RequiresAuth: true, Upstream: UpstreamNotification, UpstreamPath: "/notify", Mode: ModeCustom},
		{Name: "notifications-list", Method: http.MethodGet, Pattern: "/api/notifications", RequiresAuth: true, Upstream: UpstreamNotification, UpstreamPath: "/notifications", Mode: ModeCustom},
		{Name: "notifications", Pattern: "/api/notifications", RequiresAuth: true, Upstream: UpstreamNotification, Rewrite: "/notifications", Mode: ModeProxy},

		{Name: "data", Pattern: "/api/data", RequiresAuth: true, Upstream: UpstreamData, Rewrite: "/data", Mode: ModeProxy},
	}
}

// Router はリクエストに一致するルールを選ぶ。生成後は読み取り専用。
type Router struct {
	// custom はメソッドとパスの組をキーにしたカスタム転送ルール。
	custom map[string]RouteRule
	// proxies はプレフィックスの長い順に並べたプロキシルール。
	proxies []RouteRule
}

func customKey(method, path string) string {
	return method + " " + path
}

// NewRouter はルールからRouterを生成する。
func NewRouter(rules []RouteRule) *Router {
	r := &Router{custom: make(map[string]RouteRule)}
	for _, rule := range rules {
		if rule.Mode == ModeCustom {
			r.custom[customKey(rule.Method, rule.Pattern)] = rule
			continue
		}
		r.proxies = append(r.proxies, rule)
	}
	sort.SliceStable(r.proxies, func(i, j int) bool {
		return len(r.proxies[i].Pattern) > len(r.proxies[j].Pattern)
	})
	return r
}

// Match はメソッドとパスに一致するルールを返す。
// カスタム転送はメソッドとパスの完全一致、プロキシはセグメント境界での最長プレフィックス一致で選ぶ。
func (r *Router) Match(method, path string) (RouteRule, error) {
	if rule, ok := r.custom[customKey(method, path)]; ok {
		return rule, nil
	}
	for _, rule := range r.proxies {
		if path == rule.Pattern || strings.HasPrefix(path, rule.Pattern+"/") {
			return rule, nil
		}
	}
	return RouteRule{}, apperror.Newf(apperror.KindRouteNotFound, "ルートが見つかりません: %s %s", method, path).
		WithDetail("path", path)
}

// withTimeouts はルールに転送タイムアウトを設定したコピーを返す。
// カスタム転送には上流サービスごとのタイムアウト、プロキシには proxyTimeout を使う。
func withTimeouts(rules []RouteRule, upstreams map[string]UpstreamConfig, proxyTimeout time.Duration) []RouteRule {
	out := make([]RouteRule, len(rules))
	for i, rule := range rules {
		if rule.Mode == ModeProxy {
			rule.Timeout = proxyTimeout
		} else {
			rule.Timeout = upstreams[rule.Upstream].Timeout
		}
		out[i] = rule
	}
	return out
}
