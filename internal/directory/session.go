package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/mutt-ldap/internal/config"
)

// asyncSearcher is the slice of *ldap.Conn the search loop needs.
type asyncSearcher interface {
	SearchAsync(ctx context.Context, searchRequest *ldap.SearchRequest, bufferSize int) ldap.Response
}

// Session is an open, bound connection. Close must be called on every path
// once Open has succeeded.
type Session struct {
	url    string
	logger zerolog.Logger
	conn   *ldap.Conn
	search asyncSearcher
	closed bool
}

func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u := cfg.URL()

	conn, err := dial(cfg)
	if err != nil {
		logger.Error().Err(err).Str("url", u).Msg("failed to dial LDAP")
		return nil, &ConnectionError{Op: "dial", URL: u, Err: err}
	}

	if cfg.Connection.StartTLS && !cfg.Connection.SSL {
		if err := conn.StartTLS(tlsConfig(cfg)); err != nil {
			conn.Close()
			logger.Error().Err(err).Str("url", u).Msg("StartTLS failed")
			return nil, &ConnectionError{Op: "starttls", URL: u, Err: err}
		}
	}

	if err := bind(conn, cfg); err != nil {
		conn.Close()
		logger.Error().Err(err).
			Str("url", u).
			Str("user", cfg.Auth.User).
			Bool("gssapi", cfg.Auth.GSSAPI).
			Msg("bind failed")
		return nil, &ConnectionError{Op: "bind", URL: u, Err: err}
	}

	logger.Debug().Str("url", u).Bool("gssapi", cfg.Auth.GSSAPI).Msg("connected")
	return &Session{url: u, logger: logger, conn: conn, search: conn}, nil
}

// Close unbinds and drops the connection. Calling it twice is a no-op.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.search = nil
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Unbind(); err != nil {
		s.conn.Close()
		if errors.Is(err, ldap.ErrConnUnbound) {
			return nil
		}
		return err
	}
	s.logger.Debug().Str("url", s.url).Msg("unbound")
	return nil
}

func (s *Session) connected() bool {
	return s != nil && !s.closed && s.search != nil
}

func dial(cfg *config.Config) (*ldap.Conn, error) {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: cfg.DialTimeout()}),
	}
	if cfg.Connection.SSL {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig(cfg)))
	}
	return ldap.DialURL(cfg.URL(), opts...)
}

func tlsConfig(cfg *config.Config) *tls.Config {
	host := cfg.Connection.Server
	if h, _, err := net.SplitHostPort(host); err == nil && h != "" {
		host = h
	}
	return &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: cfg.Connection.InsecureSkipVerify,
	}
}

func bind(conn *ldap.Conn, cfg *config.Config) error {
	if cfg.Auth.GSSAPI {
		return gssapiBind(conn, cfg)
	}
	if cfg.Auth.User == "" && cfg.Auth.Password == "" {
		// anonymous
		return nil
	}
	if cfg.Auth.Password == "" {
		return conn.UnauthenticatedBind(cfg.Auth.User)
	}
	return conn.Bind(cfg.Auth.User, cfg.Auth.Password)
}
