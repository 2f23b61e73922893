package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"payment-gateway-adapter/providers"
)

type Config struct {
	Port     string        `mapstructure:"port"`
	LogLevel string        `mapstructure:"log_level"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Redis    Redis         `mapstructure:"redis"`
	Computop Computop      `mapstructure:"computop"`
	PayPal   PayPal        `mapstructure:"paypal"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Computop struct {
	MerchantID    string `mapstructure:"merchant_id"`
	Password      string `mapstructure:"password"`
	HMACKey       string `mapstructure:"hmac_key"`
	CreditCardURL string `mapstructure:"credit_card_url"`
	DebitURL      string `mapstructure:"debit_url"`
}

type PayPal struct {
	APIUsername     string        `mapstructure:"api_username"`
	APIPassword     string        `mapstructure:"api_password"`
	APISignature    string        `mapstructure:"api_signature"`
	APIEndpoint     string        `mapstructure:"api_endpoint"`
	RedirectBaseURL string        `mapstructure:"redirect_base_url"`
	Subject         string        `mapstructure:"subject"`
	APIVersion      string        `mapstructure:"api_version"`
	Locale          string        `mapstructure:"locale"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether merchant credentials were configured.
func (c Computop) Enabled() bool { return c.MerchantID != "" }

func (c Computop) Provider() providers.ComputopConfig {
	return providers.ComputopConfig{
		MerchantID:    c.MerchantID,
		Password:      c.Password,
		HMACKey:       c.HMACKey,
		CreditCardURL: c.CreditCardURL,
		DebitURL:      c.DebitURL,
	}
}

func (p PayPal) Enabled() bool { return p.APIUsername != "" }

func (p PayPal) Provider() providers.PayPalConfig {
	return providers.PayPalConfig{
		APIUsername:     p.APIUsername,
		APIPassword:     p.APIPassword,
		APISignature:    p.APISignature,
		APIEndpoint:     p.APIEndpoint,
		RedirectBaseURL: p.RedirectBaseURL,
		Subject:         p.Subject,
		APIVersion:      p.APIVersion,
		Locale:          p.Locale,
		Timeout:         p.Timeout,
	}
}

var envKeys = []string{
	"port", "log_level", "timeout",
	"redis.addr", "redis.password", "redis.db",
	"computop.merchant_id", "computop.password", "computop.hmac_key", "computop.credit_card_url", "computop.debit_url",
	"paypal.api_username", "paypal.api_password", "paypal.api_signature", "paypal.api_endpoint",
	"paypal.redirect_base_url", "paypal.subject", "paypal.api_version", "paypal.locale", "paypal.timeout",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("computop.credit_card_url", providers.DefaultComputopCreditCardURL)
	v.SetDefault("computop.debit_url", providers.DefaultComputopDebitURL)
	v.SetDefault("paypal.api_endpoint", "https://api-3t.sandbox.paypal.com/nvp")
	v.SetDefault("paypal.redirect_base_url", "https://www.sandbox.paypal.com/cgi-bin/webscr?cmd=_express-checkout&token=")
	v.SetDefault("paypal.api_version", providers.DefaultPayPalVersion)
	v.SetDefault("paypal.locale", providers.DefaultPayPalLocale)
	v.SetDefault("paypal.timeout", providers.DefaultPayPalTimeout)
}

// Load reads configuration from the environment (PAYPAL_API_USERNAME for
// paypal.api_username and so on), a .env file if present, and the YAML file
// named by path when path is not empty. Environment wins over the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
