package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const (
	// jarTimeout はCookieの書き込み1回あたりのタイムアウト。
	jarTimeout = 5 * time.Second
	// expiresLayout はexpires_atの書式。文字列の大小が時刻の前後と一致するよう固定幅にする。
	expiresLayout = "2006-01-02T15:04:05.000000000Z"
)

// Jar はSessionDBに保存するhttp.CookieJar。
//
// Cookieの一致判定はnet/http/cookiejarに任せ、Public Suffix Listで
// Domain属性を検証する。受け取ったCookieはSessionDBにも書き込み、
// 次にSessionDBを開いたときに期限内のものだけを読み戻す。
// 期限の無いCookieもプロセス終了後に残る。
type Jar struct {
	session *SessionDB
	inner   *cookiejar.Jar
}

var _ http.CookieJar = (*Jar)(nil)

func newJar(session *SessionDB) (*Jar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("CookieJarの生成に失敗: %w", err)
	}
	return &Jar{session: session, inner: inner}, nil
}

// SetCookies はレスポンスで受け取ったCookieを保存する。
// http.CookieJarはエラーを返せないため、書き込みの失敗はログに出して無視する。
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	ctx, cancel := context.WithTimeout(context.Background(), jarTimeout)
	defer cancel()

	now := j.session.now()
	host := strings.ToLower(u.Hostname())
	for _, c := range cookies {
		domain, ok := cookieDomain(host, c.Domain)
		if !ok {
			continue
		}
		path := c.Path
		if !strings.HasPrefix(path, "/") {
			path = defaultPath(u.Path)
		}

		if c.MaxAge < 0 || (c.MaxAge == 0 && !c.Expires.IsZero() && !c.Expires.After(now)) {
			if _, err := j.session.db.ExecContext(ctx,
				`DELETE FROM cookies WHERE domain = ? AND name = ? AND path = ?`,
				domain, c.Name, path,
			); err != nil {
				j.session.logger.Warn("Cookieの削除に失敗", zap.String("name", c.Name), zap.Error(err))
			}
			continue
		}

		var expires sql.NullString
		switch {
		case c.MaxAge > 0:
			expires = sql.NullString{String: now.Add(time.Duration(c.MaxAge) * time.Second).UTC().Format(expiresLayout), Valid: true}
		case !c.Expires.IsZero():
			expires = sql.NullString{String: c.Expires.UTC().Format(expiresLayout), Valid: true}
		}

		origin := (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
		if _, err := j.session.db.ExecContext(ctx, `
			INSERT INTO cookies (domain, name, path, origin, domain_attr, value, expires_at, secure, http_only)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (domain, name, path) DO UPDATE SET
				origin = excluded.origin,
				domain_attr = excluded.domain_attr,
				value = excluded.value,
				expires_at = excluded.expires_at,
				secure = excluded.secure,
				http_only = excluded.http_only
		`, domain, c.Name, path, origin, c.Domain, c.Value, expires, c.Secure, c.HttpOnly); err != nil {
			j.session.logger.Warn("Cookieの保存に失敗", zap.String("name", c.Name), zap.Error(err))
		}
	}
}

// Cookies はリクエスト先に送るCookieを返す。
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// load は保存済みのCookieを読み戻す。期限切れの行は削除する。
func (j *Jar) load(ctx context.Context) error {
	now := j.session.now()
	if _, err := j.session.db.ExecContext(ctx,
		`DELETE FROM cookies WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		now.UTC().Format(expiresLayout),
	); err != nil {
		return fmt.Errorf("期限切れCookieの削除に失敗: %w", err)
	}

	rows, err := j.session.db.QueryContext(ctx,
		`SELECT name, path, origin, domain_attr, value, expires_at, secure, http_only FROM cookies`,
	)
	if err != nil {
		return fmt.Errorf("Cookieの読み込みに失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			c       http.Cookie
			origin  string
			expires sql.NullString
		)
		if err := rows.Scan(&c.Name, &c.Path, &origin, &c.Domain, &c.Value, &expires, &c.Secure, &c.HttpOnly); err != nil {
			return fmt.Errorf("Cookieの読み込みに失敗: %w", err)
		}
		if expires.Valid {
			t, err := time.Parse(expiresLayout, expires.String)
			if err != nil || !t.After(now) {
				continue
			}
			c.Expires = t
		}
		u, err := url.Parse(origin)
		if err != nil {
			j.session.logger.Warn("Cookieの送信元が不正", zap.String("origin", origin), zap.Error(err))
			continue
		}
		u.Path = c.Path
		j.inner.SetCookies(u, []*http.Cookie{&c})
	}
	return rows.Err()
}

// cookieDomain はCookieを保存する行のドメインを返す。
// Domain属性がhostに一致しないか公開サフィックスそのものなら、jarが受け付けないためfalseを返す。
func cookieDomain(host, attr string) (string, bool) {
	if attr == "" {
		return host, true
	}
	domain := strings.ToLower(strings.TrimPrefix(attr, "."))
	if domain == "" {
		return "", false
	}
	if host != domain && !strings.HasSuffix(host, "."+domain) {
		return "", false
	}
	if ps, _ := publicsuffix.PublicSuffix(domain); ps == domain && host != domain {
		return "", false
	}
	return domain, true
}

// defaultPath はPath属性が無いCookieのパスをリクエストのパスから求める。
func defaultPath(reqPath string) string {
	if !strings.HasPrefix(reqPath, "/") {
		return "/"
	}
	i := strings.LastIndex(reqPath, "/")
	if i == 0 {
		return "/"
	}
	return reqPath[:i]
}
