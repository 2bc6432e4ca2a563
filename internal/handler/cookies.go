package handler

import "net/http"

// cookieWriter は共通属性（Path, Domain, Secure, SameSite）でCookieを書き込む。
type cookieWriter struct {
	domain string
	secure bool
}

// set はHttpOnlyのCookieを設定する。maxAgeが負の場合は削除になる。
// withDomainがfalseの場合はホスト限定Cookieになる。
func (c cookieWriter) set(w http.ResponseWriter, name, value string, maxAge int, withDomain bool) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if withDomain {
		cookie.Domain = c.domain
	}
	http.SetCookie(w, cookie)
}

// clearSession はセッションとアクティブ組織のCookieを削除する。
func (c cookieWriter) clearSession(w http.ResponseWriter) {
	c.set(w, sessionCookieName, "", -1, true)
	c.set(w, organizationCookieName, "", -1, true)
}
