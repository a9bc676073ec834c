// Package security はCanvasフィード取得に関わる安全対策を提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrTooManyRedirects はリダイレクト回数が上限を超えたことを示す。
var ErrTooManyRedirects = errors.New("too many redirects")

// URLGuard はユーザー登録のICS URLに対するSSRF防止機能のインターフェースを定義する。
// Canvas連携の登録時とフェッチ時の両方で使用される。
type URLGuard interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続は
	// ダイヤル時にブロックされ、リダイレクトはmaxRedirects回まで追従する。
	NewSafeClient(timeout time.Duration, maxRedirects int) *http.Client

	// ValidateURL はURLが絶対http/https URLで、危険なホストを指していないかを静的に検証する。
	ValidateURL(rawURL string) error
}

// allowedSchemes はフィードURLで許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はValidateURLで拒否するネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// RFC 1918
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// 169.254.169.254 (クラウドメタデータ) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// feedGuard はURLGuardの実装。
type feedGuard struct{}

// NewURLGuard はURLGuardの新しいインスタンスを生成する。
func NewURLGuard() *feedGuard {
	return &feedGuard{}
}

// NewSafeClient はsafeurlで構築したHTTPクライアントを返す。
// safeurlはnet.DialerのControlフックでDNS解決後のIPを検証するため、
// リダイレクト先やDNS再バインディングも同じ規則でブロックされる。
func (g *feedGuard) NewSafeClient(timeout time.Duration, maxRedirects int) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(config).Client
	client.CheckRedirect = RedirectLimit(maxRedirects)
	return client
}

// RedirectLimit はリダイレクトをmax回までに制限するCheckRedirect関数を返す。
// maxが0以下の場合はリダイレクトを追従しない。
func RedirectLimit(max int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, max)
		}
		return nil
	}
}

// ValidateURL はフィードURLの安全性を事前に検証する。
// DNS解決を伴わない静的チェックのため、解決後のIP検証はNewSafeClient側で行われる。
func (g *feedGuard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !parsed.IsAbs() {
		return fmt.Errorf("URL is not absolute: %s", rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// isBlockedHostname はlocalhostおよびその配下のホスト名を拒否する。
func isBlockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	return lower == "localhost" || strings.HasSuffix(lower, ".localhost")
}
