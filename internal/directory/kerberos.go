package directory

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	"github.com/sonroyaalmerol/mutt-ldap/internal/config"
)

// gssapiBind authenticates with the caller's existing Kerberos tickets, the
// same way `ldapsearch -Y GSSAPI` does. No password is ever used.
func gssapiBind(conn *ldap.Conn, cfg *config.Config) error {
	krb5conf := cfg.Auth.Krb5Conf
	if krb5conf == "" {
		krb5conf = "/etc/krb5.conf"
	}
	if !fileExists(krb5conf) {
		return fmt.Errorf("kerberos configuration file not found at %s", krb5conf)
	}

	ccache := defaultCCachePath()
	if !fileExists(ccache) {
		return fmt.Errorf("no kerberos credential cache at %s (run kinit first)", ccache)
	}

	client, err := gssapi.NewClientFromCCache(ccache, krb5conf, krb5client.DisablePAFXFAST(true))
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	if err := conn.GSSAPIBind(client, servicePrincipal(cfg.Connection.Server), ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}
	return nil
}

func servicePrincipal(server string) string {
	host := strings.TrimSpace(server)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return "ldap/" + host
}

func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
