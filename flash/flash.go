// Package flash carries one-time notices across a redirect in a sealed cookie.
package flash

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// CookieName is the cookie that holds the pending notice.
const CookieName = "blogpom_flash"

// MaxAge is how long, in seconds, a notice survives if nobody reads it.
const MaxAge = 60

const nonceSize = 24

// Kind is the severity of a notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Message is a notice shown once on the next rendered page.
type Message struct {
	Kind Kind   `json:"kind"`
	Text string `json:"message"`
}

func Success(text string) Message { return Message{Kind: KindSuccess, Text: text} }

func Error(text string) Message { return Message{Kind: KindError, Text: text} }

var errInvalid = errors.New("invalid flash payload")

// Codec seals notices into cookies and opens them again. It is safe for
// concurrent use.
type Codec struct {
	key [32]byte
}

// NewCodec returns a Codec sealing with key. Every process serving the same
// site must share the key.
func NewCodec(key [32]byte) *Codec {
	return &Codec{key: key}
}

// Write attaches msg to the response. Messages with an unknown kind or no
// text are dropped. The cookie is Secure when r arrived over TLS.
func (c *Codec) Write(w http.ResponseWriter, r *http.Request, msg Message) error {
	msg, ok := normalize(msg)
	if !ok {
		return nil
	}
	value, err := c.seal(msg)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   MaxAge,
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Redirect attaches msg to the response and redirects to url with 303 See
// Other, so the browser follows up with a GET.
func (c *Codec) Redirect(w http.ResponseWriter, r *http.Request, url string, msg Message) error {
	if err := c.Write(w, r, msg); err != nil {
		return err
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
	return nil
}

// Pending reports whether r carries a flash cookie, valid or not.
func Pending(r *http.Request) bool {
	_, err := r.Cookie(CookieName)
	return err == nil
}

// Read returns the notice carried by r without expiring it. A tampered
// cookie reads as no notice.
func (c *Codec) Read(r *http.Request) (Message, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Message{}, false
	}
	msg, err := c.open(cookie.Value)
	if err != nil {
		return Message{}, false
	}
	return msg, true
}

// ReadAndClear returns the pending notice, if any, and expires the cookie so
// the notice is never shown twice. A tampered cookie is cleared and ignored.
func (c *Codec) ReadAndClear(w http.ResponseWriter, r *http.Request) (Message, bool) {
	if !Pending(r) {
		return Message{}, false
	}
	Clear(w, r)
	return c.Read(r)
}

// Clear expires the flash cookie.
func Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func isHTTPS(r *http.Request) bool {
	return r != nil && r.TLS != nil
}

func (c *Codec) seal(msg Message) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], payload, &nonce, &c.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

func (c *Codec) open(value string) (Message, error) {
	box, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return Message{}, errInvalid
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	payload, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &c.key)
	if !ok {
		return Message{}, errInvalid
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, errInvalid
	}
	msg, ok = normalize(msg)
	if !ok {
		return Message{}, errInvalid
	}
	return msg, nil
}

func normalize(msg Message) (Message, bool) {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return Message{}, false
	}
	msg.Kind = Kind(strings.ToLower(strings.TrimSpace(string(msg.Kind))))
	switch msg.Kind {
	case KindSuccess, KindInfo, KindWarning, KindError:
		return msg, true
	default:
		return Message{}, false
	}
}
