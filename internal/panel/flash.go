package panel

import (
	"encoding/base64"
	"net/http"
	"strings"
)

const flashCookie = "autolike_flash"

// Flash categories, used as CSS classes by the templates.
const (
	flashSuccess = "success"
	flashWarning = "warning"
	flashDanger  = "danger"
)

type flash struct {
	Category string
	Message  string
}

func setFlash(w http.ResponseWriter, category, msg string, secure bool) {
	v := base64.RawURLEncoding.EncodeToString([]byte(category + "|" + msg))
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    v,
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the pending flash, if any.
func popFlash(w http.ResponseWriter, r *http.Request) *flash {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	category, msg, ok := strings.Cut(string(raw), "|")
	if !ok || msg == "" {
		return nil
	}
	switch category {
	case flashSuccess, flashWarning, flashDanger:
	default:
		category = flashWarning
	}
	return &flash{Category: category, Message: msg}
}
