package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config は全サービス共通の設定。各サービスは必要な項目だけを参照する。
type Config struct {
	// Service は設定を読み込んだサービス名。ログ出力に使用する。
	Service string `mapstructure:"service"`
	// Port はHTTPサーバーのリッスンポート。
	Port string `mapstructure:"port"`
	// JWTSecret はJWT署名用の共有秘密鍵。デフォルト値は持たない。
	JWTSecret string `mapstructure:"jwt_secret"`
	// JWTExpiresIn はトークンの有効期間の表記（例: "1h", "7d", "3600"）。
	JWTExpiresIn string `mapstructure:"jwt_expires_in"`
	// LogLevel はログレベル（debug, info, warn, error）。
	LogLevel string `mapstructure:"log_level"`
	// LogFile はログの出力先ファイル。空の場合は標準エラー出力。
	LogFile string `mapstructure:"log_file"`
	// FrontendURL はCORSで許可するオリジン。
	FrontendURL string `mapstructure:"frontend_url"`
	// Services は内部サービスの接続先。
	Services ServiceURLs `mapstructure:"services"`
	// Timeouts は内部サービスごとの通信タイムアウト。
	Timeouts Timeouts `mapstructure:"timeouts"`
	// Gateway はGateway固有の設定。
	Gateway GatewayConfig `mapstructure:"gateway"`
}

// ServiceURLs は内部サービスのベースURL。
type ServiceURLs struct {
	Auth         string `mapstructure:"auth"`
	Product      string `mapstructure:"product"`
	Order        string `mapstructure:"order"`
	Notification string `mapstructure:"notification"`
	Data         string `mapstructure:"data"`
}

// Timeouts は内部サービスへのリクエストタイムアウト。
type Timeouts struct {
	Auth         time.Duration `mapstructure:"auth"`
	Product      time.Duration `mapstructure:"product"`
	Order        time.Duration `mapstructure:"order"`
	Notification time.Duration `mapstructure:"notification"`
	Data         time.Duration `mapstructure:"data"`
	// Proxy は透過プロキシ経由の転送に適用するタイムアウト。
	Proxy time.Duration `mapstructure:"proxy"`
}

// GatewayConfig はGateway固有の設定。
type GatewayConfig struct {
	// VerifyMode はトークン検証方式。"remote"（Authサービスの /verify を呼ぶ）または "local"。
	VerifyMode string `mapstructure:"verify_mode"`
	// RateLimitRPS はクライアントIPごとの1秒あたりの許可リクエスト数。0で無効。
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	// RateLimitBurst はレート制限のバースト許容数。
	RateLimitBurst int `mapstructure:"rate_limit_burst"`
}

// Verify mode の値。
const (
	VerifyModeRemote = "remote"
	VerifyModeLocal  = "local"
)

// envBindings は設定キーと環境変数名の対応。
var envBindings = map[string]string{
	"port":                     "PORT",
	"jwt_secret":               "JWT_SECRET",
	"jwt_expires_in":           "JWT_EXPIRES_IN",
	"log_level":                "LOG_LEVEL",
	"log_file":                 "LOG_FILE",
	"frontend_url":             "FRONTEND_URL",
	"services.auth":            "AUTH_URL",
	"services.product":         "PRODUCT_URL",
	"services.order":           "ORDER_URL",
	"services.notification":    "NOTIF_URL",
	"services.data":            "DATA_URL",
	"timeouts.auth":            "AUTH_TIMEOUT",
	"timeouts.product":         "PRODUCT_TIMEOUT",
	"timeouts.order":           "ORDER_TIMEOUT",
	"timeouts.notification":    "NOTIF_TIMEOUT",
	"timeouts.data":            "DATA_TIMEOUT",
	"timeouts.proxy":           "PROXY_TIMEOUT",
	"gateway.verify_mode":      "GATEWAY_VERIFY_MODE",
	"gateway.rate_limit_rps":   "RATE_LIMIT_RPS",
	"gateway.rate_limit_burst": "RATE_LIMIT_BURST",
}

// setDefaults はデフォルト値を設定する。
func setDefaults(v *viper.Viper, service, defaultPort string) {
	v.SetDefault("service", service)
	v.SetDefault("port", defaultPort)
	v.SetDefault("jwt_expires_in", "1h")
	v.SetDefault("log_level", "info")
	v.SetDefault("frontend_url", "http://localhost:3000")

	v.SetDefault("services.auth", "http://localhost:4001")
	v.SetDefault("services.product", "http://localhost:5001")
	v.SetDefault("services.order", "http://localhost:5002")
	v.SetDefault("services.notification", "http://localhost:5003")
	v.SetDefault("services.data", "http://localhost:4002")

	v.SetDefault("timeouts.auth", 12*time.Second)
	v.SetDefault("timeouts.product", 15*time.Second)
	v.SetDefault("timeouts.order", 15*time.Second)
	v.SetDefault("timeouts.notification", 15*time.Second)
	v.SetDefault("timeouts.data", 15*time.Second)
	v.SetDefault("timeouts.proxy", 10*time.Second)

	v.SetDefault("gateway.verify_mode", VerifyModeRemote)
	v.SetDefault("gateway.rate_limit_rps", 0.0)
	v.SetDefault("gateway.rate_limit_burst", 20)
}

// Load はサービス名とデフォルトポートを指定して設定を読み込む。
// CONFIG_FILE が設定されている場合はYAMLファイルも読み込む。
func Load(service, defaultPort string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service, defaultPort)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("環境変数 %s のバインドに失敗: %w", env, err)
		}
	}

	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return nil, fmt.Errorf("環境変数 CONFIG_FILE のバインドに失敗: %w", err)
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT が空です")
	}
	switch c.Gateway.VerifyMode {
	case VerifyModeRemote, VerifyModeLocal:
	default:
		return fmt.Errorf("GATEWAY_VERIFY_MODE が不正です: %q", c.Gateway.VerifyMode)
	}
	if c.Gateway.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS は0以上である必要があります: %v", c.Gateway.RateLimitRPS)
	}
	if _, err := ParseTTL(c.JWTExpiresIn); err != nil {
		return err
	}
	return nil
}

// ParseTTL はトークン有効期間の表記を解釈する。
// Goの期間表記（"90m", "1h"）に加えて、日数（"7d"）と秒数のみの表記（"3600"）を受け付ける。
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("JWT_EXPIRES_IN が空です")
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("JWT_EXPIRES_IN は正の値である必要があります: %q", s)
		}
		return time.Duration(secs) * time.Second, nil
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("JWT_EXPIRES_IN の日数表記が不正です: %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("JWT_EXPIRES_IN の形式が不正です: %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("JWT_EXPIRES_IN は正の値である必要があります: %q", s)
	}
	return d, nil
}
