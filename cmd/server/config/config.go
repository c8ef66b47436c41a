// Package config loads server configuration from the environment.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// HTTPConfig holds the public API server settings.
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// RedisConfig holds cache connection and behavior settings.
type RedisConfig struct {
	URL                string
	Namespace          string
	DialTimeout        *time.Duration
	ReadTimeout        *time.Duration
	WriteTimeout       *time.Duration
	PoolSize           *int
	MinIdleConns       *int
	MaxRetries         *int
	HealthcheckTimeout time.Duration
	CacheTTL           time.Duration
	EnableOTel         bool
	TLSConfig          *tls.Config
}

// KafkaConfig holds the transaction queue settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// CollaboratorConfig holds the customer and product service endpoints.
// Empty URLs select the in-memory fallback clients.
type CollaboratorConfig struct {
	CustomerBaseURL string
	ProductBaseURL  string
}

// PaymentConfig holds the payment processor tuning knobs. Zero values take
// the processor defaults.
type PaymentConfig struct {
	Ceiling     float64
	Floor       float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
	SuccessRate float64
}

// ObservabilityConfig holds the HTTP address for the metrics endpoint.
type ObservabilityConfig struct {
	Addr string
}

// LoadHTTP reads API server settings from env.
func LoadHTTP() (HTTPConfig, error) {
	cfg := HTTPConfig{
		Addr:            ":8080",
		ShutdownTimeout: 10 * time.Second,
	}
	if addr := strings.TrimSpace(os.Getenv("HTTP_ADDR")); addr != "" {
		cfg.Addr = addr
	}
	timeout, err := optionalDuration("HTTP_SHUTDOWN_TIMEOUT")
	if err != nil {
		return cfg, err
	}
	if timeout != nil {
		cfg.ShutdownTimeout = *timeout
	}
	return cfg, nil
}

// RedisEnabled reports whether a cache URL is configured.
func RedisEnabled() bool {
	return strings.TrimSpace(os.Getenv("REDIS_URL")) != ""
}

// LoadRedis reads cache config from env. REDIS_URL must be set.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{
		Namespace: "orderflow",
	}

	url, err := requiredString("REDIS_URL")
	if err != nil {
		return cfg, err
	}
	cfg.URL = url

	if ns := strings.TrimSpace(os.Getenv("REDIS_NAMESPACE")); ns != "" {
		cfg.Namespace = ns
	}

	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, err
	}
	if cfg.MinIdleConns, err = optionalInt("REDIS_MIN_IDLE_CONNS"); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = optionalInt("REDIS_MAX_RETRIES"); err != nil {
		return cfg, err
	}

	if cfg.HealthcheckTimeout, err = requiredDuration("REDIS_HEALTHCHECK_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.CacheTTL, err = requiredDuration("REDIS_CACHE_TTL"); err != nil {
		return cfg, err
	}

	if cfg.EnableOTel, err = optionalBool("REDIS_OTEL"); err != nil {
		return cfg, err
	}

	if cfg.TLSConfig, err = loadRedisTLSFromEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// KafkaEnabled reports whether a broker list is configured.
func KafkaEnabled() bool {
	return strings.TrimSpace(os.Getenv("KAFKA_BROKERS")) != ""
}

// LoadKafka reads transaction queue config from env. KAFKA_BROKERS must be
// set.
func LoadKafka() (KafkaConfig, error) {
	raw, err := requiredString("KAFKA_BROKERS")
	if err != nil {
		return KafkaConfig{}, err
	}
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return KafkaConfig{}, errors.New("KAFKA_BROKERS contains no brokers")
	}

	topic, err := requiredString("KAFKA_TOPIC")
	if err != nil {
		return KafkaConfig{}, err
	}
	groupID, err := requiredString("KAFKA_GROUP_ID")
	if err != nil {
		return KafkaConfig{}, err
	}

	return KafkaConfig{Brokers: brokers, Topic: topic, GroupID: groupID}, nil
}

// LoadCollaborators reads the customer and product service endpoints from
// env. Both are optional.
func LoadCollaborators() CollaboratorConfig {
	return CollaboratorConfig{
		CustomerBaseURL: strings.TrimSpace(os.Getenv("CUSTOMER_API_URL")),
		ProductBaseURL:  strings.TrimSpace(os.Getenv("PRODUCT_API_URL")),
	}
}

// LoadPayment reads payment processor settings from env.
func LoadPayment() (PaymentConfig, error) {
	cfg := PaymentConfig{}
	var err error

	if cfg.Ceiling, err = optionalFloat("PAYMENT_CEILING"); err != nil {
		return cfg, err
	}
	if cfg.Floor, err = optionalFloat("PAYMENT_FLOOR"); err != nil {
		return cfg, err
	}
	if cfg.SuccessRate, err = optionalFloat("PAYMENT_SUCCESS_RATE"); err != nil {
		return cfg, err
	}
	if cfg.SuccessRate < 0 || cfg.SuccessRate > 1 {
		return cfg, errors.New("PAYMENT_SUCCESS_RATE must be between 0 and 1")
	}

	minDelay, err := optionalDuration("PAYMENT_MIN_DELAY")
	if err != nil {
		return cfg, err
	}
	if minDelay != nil {
		cfg.MinDelay = *minDelay
	}
	maxDelay, err := optionalDuration("PAYMENT_MAX_DELAY")
	if err != nil {
		return cfg, err
	}
	if maxDelay != nil {
		cfg.MaxDelay = *maxDelay
	}
	if cfg.MinDelay > 0 && cfg.MaxDelay > 0 && cfg.MaxDelay < cfg.MinDelay {
		return cfg, errors.New("PAYMENT_MAX_DELAY must be >= PAYMENT_MIN_DELAY")
	}

	return cfg, nil
}

// LoadObservability reads metrics HTTP server address from env.
func LoadObservability() (ObservabilityConfig, error) {
	addr, err := requiredString("OBS_ADDR")
	if err != nil {
		return ObservabilityConfig{}, err
	}
	return ObservabilityConfig{Addr: addr}, nil
}

func loadRedisTLSFromEnv() (*tls.Config, error) {
	caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_FILE"))
	certFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CERT_FILE"))
	keyFile := strings.TrimSpace(os.Getenv("REDIS_TLS_KEY_FILE"))
	serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME"))
	insecureStr := strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE_SKIP_VERIFY"))

	if caFile == "" && certFile == "" && keyFile == "" && serverName == "" && insecureStr == "" {
		return nil, nil
	}
	if (certFile == "") != (keyFile == "") {
		return nil, errors.New("REDIS_TLS_CERT_FILE and REDIS_TLS_KEY_FILE must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if insecureStr != "" {
		insecure, err := strconv.ParseBool(insecureStr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE_SKIP_VERIFY: %w", err)
		}
		tlsConfig.InsecureSkipVerify = insecure
	}

	if caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.New("REDIS_TLS_CA_FILE contains no valid certificates")
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis TLS keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalFloat(name string) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func optionalBool(name string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return val, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}

func requiredDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}
