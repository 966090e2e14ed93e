package http

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the engine reads. It is loaded by the
// application and passed in as plain values.
type Config struct {
	ServerName string
	HostName   string
	Host       string

	Port    int
	TLSPort int

	// CertFile and KeyFile enable the TLS listener. TLSConfig, when set,
	// takes precedence over the files.
	CertFile  string
	KeyFile   string
	TLSConfig *tls.Config

	// RedirectToSecure turns the plain listener into a redirector to the
	// TLS endpoint.
	RedirectToSecure bool

	SocketTimeout    time.Duration
	KeepAliveTimeout time.Duration
	HandshakeTimeout time.Duration

	MaxHeaders     int
	MaxQueryKeys   int
	MaxLineSize    int
	MaxBodySize    int64
	// MaxConnections is the exact number of connections served at once.
	MaxConnections int
	FileChunkSize  int

	// SuspiciousErrors are fragments of TLS or socket error messages that
	// indicate a peer probing for weak ciphers or protocol versions.
	SuspiciousErrors []string
	// SuspiciousPaths are request paths nobody asks for in good faith.
	SuspiciousPaths []string
}

func DefaultConfig() Config {
	return Config{
		ServerName:       "wicket",
		HostName:         "localhost",
		Host:             "0.0.0.0",
		Port:             8080,
		TLSPort:          8443,
		SocketTimeout:    3 * time.Second,
		KeepAliveTimeout: 3 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		MaxHeaders:       70,
		MaxQueryKeys:     20,
		MaxLineSize:      1024,
		MaxBodySize:      10 * 1024 * 1024,
		MaxConnections:   1024,
		FileChunkSize:    DefaultFileChunkSize,
		SuspiciousErrors: []string{
			"no cipher suite supported by both client and server",
			"client offered only unsupported versions",
			"no cipher suites in common",
		},
	}
}

func (cfg Config) Validate() error {
	var errs []error
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: port %d out of range", cfg.Port))
	}
	if cfg.TLSPort < 0 || cfg.TLSPort > 65535 {
		errs = append(errs, fmt.Errorf("config: tls port %d out of range", cfg.TLSPort))
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		errs = append(errs, errors.New("config: cert file and key file must be set together"))
	}
	if cfg.RedirectToSecure && !cfg.TLSEnabled() {
		errs = append(errs, errors.New("config: redirect to secure requires tls certificate material"))
	}
	if cfg.SocketTimeout <= 0 {
		errs = append(errs, errors.New("config: socket timeout must be positive"))
	}
	if cfg.MaxHeaders <= 0 || cfg.MaxQueryKeys <= 0 || cfg.MaxLineSize <= 0 || cfg.MaxBodySize <= 0 {
		errs = append(errs, errors.New("config: size limits must be positive"))
	}
	if cfg.MaxConnections <= 0 {
		errs = append(errs, errors.New("config: max connections must be positive"))
	}
	if cfg.FileChunkSize <= 0 {
		errs = append(errs, errors.New("config: file chunk size must be positive"))
	}
	return errors.Join(errs...)
}

func (cfg Config) TLSEnabled() bool {
	return cfg.TLSConfig != nil || (cfg.CertFile != "" && cfg.KeyFile != "")
}

func (cfg Config) keepAliveSeconds() int {
	timeout := cfg.KeepAliveTimeout
	if timeout <= 0 {
		timeout = cfg.SocketTimeout
	}
	return int(timeout / time.Second)
}

// ConfigFromEnv overlays WICKET_* variables on DefaultConfig. Unset
// variables keep their default.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	var errs []error

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	list := func(key string, dst *[]string) {
		if v := getenv(key); v != "" {
			items := make([]string, 0)
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			*dst = items
		}
	}

	str("WICKET_SERVER_NAME", &cfg.ServerName)
	str("WICKET_HOST_NAME", &cfg.HostName)
	str("WICKET_HOST", &cfg.Host)
	str("WICKET_CERT_FILE", &cfg.CertFile)
	str("WICKET_KEY_FILE", &cfg.KeyFile)
	integer("WICKET_PORT", &cfg.Port)
	integer("WICKET_TLS_PORT", &cfg.TLSPort)
	integer("WICKET_MAX_HEADERS", &cfg.MaxHeaders)
	integer("WICKET_MAX_QUERY_KEYS", &cfg.MaxQueryKeys)
	integer("WICKET_MAX_LINE_SIZE", &cfg.MaxLineSize)
	integer("WICKET_MAX_CONNECTIONS", &cfg.MaxConnections)
	integer("WICKET_FILE_CHUNK_SIZE", &cfg.FileChunkSize)
	duration("WICKET_SOCKET_TIMEOUT", &cfg.SocketTimeout)
	duration("WICKET_KEEP_ALIVE_TIMEOUT", &cfg.KeepAliveTimeout)
	duration("WICKET_HANDSHAKE_TIMEOUT", &cfg.HandshakeTimeout)
	list("WICKET_SUSPICIOUS_ERRORS", &cfg.SuspiciousErrors)
	list("WICKET_SUSPICIOUS_PATHS", &cfg.SuspiciousPaths)

	if v := getenv("WICKET_MAX_BODY_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: WICKET_MAX_BODY_SIZE: %w", err))
		} else {
			cfg.MaxBodySize = n
		}
	}
	if v := getenv("WICKET_REDIRECT_TO_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: WICKET_REDIRECT_TO_SECURE: %w", err))
		} else {
			cfg.RedirectToSecure = b
		}
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
