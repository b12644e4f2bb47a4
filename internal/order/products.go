package order

import (
	"context"
	"errors"
	"net/url"

	"github.com/nao1215/shopgate/pkg/httpclient"
	"go.uber.org/zap"
)

// PriceLookup は商品の価格を取得する。取得できない場合はnilを返す。
// 転送するヘッダーは httpclient.WithHeaders でctxに設定する。
type PriceLookup interface {
	Price(ctx context.Context, productID string) *float64
}

// productClient は商品サービスから価格を取得する。
type productClient struct {
	client *httpclient.Client
	log    *zap.Logger
}

// Price は GET /products/:id を呼び出して価格を返す。
// 2xx以外のレスポンスや通信失敗はnilとして扱い、注文の作成は続行する。
func (p *productClient) Price(ctx context.Context, productID string) *float64 {
	var body struct {
		Price *float64 `json:"price"`
	}
	err := p.client.GetJSON(ctx, "/products/"+url.PathEscape(productID), &body)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			p.log.Info("product lookup returned non-2xx", zap.String("product_id", productID), zap.Int("status", se.StatusCode))
		} else {
			p.log.Warn("product lookup failed", zap.String("product_id", productID), zap.Error(err))
		}
		return nil
	}
	return body.Price
}
