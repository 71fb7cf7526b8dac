package cloud

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/weiminghaoo/save-mi-doorbell-video/internal/auth"
	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

// Account login endpoints. Responses carry a "&&&START&&" anti-hijacking
// prefix that must be stripped before JSON parsing.
const (
	serviceLoginURL  = "https://account.xiaomi.com/pass/serviceLogin?sid=xiaomiio&_json=true"
	serviceAuth2URL  = "https://account.xiaomi.com/pass/serviceLoginAuth2"
	jsonGuardPrefix  = "&&&START&&"
	serviceTokenName = "serviceToken"
)

type ClientConfig struct {
	Username string
	Password string
	Server   string // region, e.g. "cn", "de", "us"
	Timeout  time.Duration
}

// MiCloud is the resty-backed Session implementation.
type MiCloud struct {
	http  *resty.Client
	cfg   ClientConfig
	creds models.Credentials
	log   zerolog.Logger
}

func New(cfg ClientConfig, log zerolog.Logger) *MiCloud {
	r := resty.New()
	if cfg.Timeout > 0 {
		r.SetTimeout(cfg.Timeout)
	}
	r.SetHeader("User-Agent", "APP/com.xiaomi.mihome APPV/10.5.201")
	return &MiCloud{
		http: r,
		cfg:  cfg,
		log:  log.With().Str("component", "cloud").Logger(),
	}
}

func (c *MiCloud) Credentials() models.Credentials { return c.creds }

func (c *MiCloud) Restore(creds models.Credentials) { c.creds = creds }

// stripGuard removes the anti-hijacking prefix from account responses.
func stripGuard(body []byte) []byte {
	s := strings.TrimSpace(string(body))
	s = strings.TrimPrefix(s, jsonGuardPrefix)
	return []byte(s)
}

type loginStep1 struct {
	Sign     string `json:"_sign"`
	QS       string `json:"qs"`
	Callback string `json:"callback"`
}

type loginStep2 struct {
	Code        int         `json:"code"`
	Description string      `json:"description"`
	SSecurity   string      `json:"ssecurity"`
	UserID      json.Number `json:"userId"`
	CUserID     string      `json:"cUserId"`
	PassToken   string      `json:"passToken"`
	Location    string      `json:"location"`
}

// Login runs the three-step account login: fetch the login form state, post
// the credential hash, then follow the issued location to collect the
// service token cookie.
func (c *MiCloud) Login() error {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return errors.New("username and password are required")
	}

	// Step 1: login form state
	resp, err := c.http.R().Get(serviceLoginURL)
	if err != nil {
		return fmt.Errorf("service login: %w", err)
	}
	var s1 loginStep1
	if err := json.Unmarshal(stripGuard(resp.Body()), &s1); err != nil {
		return fmt.Errorf("parse service login response: %w", err)
	}

	// Step 2: credential exchange
	resp, err = c.http.R().
		SetFormData(map[string]string{
			"user":     c.cfg.Username,
			"hash":     auth.PasswordHash(c.cfg.Password),
			"_json":    "true",
			"sid":      "xiaomiio",
			"_sign":    s1.Sign,
			"qs":       s1.QS,
			"callback": s1.Callback,
		}).
		Post(serviceAuth2URL)
	if err != nil {
		return fmt.Errorf("login auth: %w", err)
	}
	var s2 loginStep2
	if err := json.Unmarshal(stripGuard(resp.Body()), &s2); err != nil {
		return fmt.Errorf("parse login auth response: %w", err)
	}
	if s2.Code != 0 {
		return fmt.Errorf("login rejected (code %d): %s", s2.Code, s2.Description)
	}
	if s2.Location == "" {
		return errors.New("login succeeded but no service location returned")
	}

	// Step 3: follow the location to obtain the service token
	resp, err = c.http.R().Get(s2.Location)
	if err != nil {
		return fmt.Errorf("fetch service token: %w", err)
	}
	token := ""
	for _, ck := range resp.Cookies() {
		if ck.Name == serviceTokenName {
			token = ck.Value
		}
	}
	if token == "" {
		return errors.New("login succeeded but no service token cookie returned")
	}

	c.creds = models.Credentials{
		UserID:       s2.UserID.String(),
		ServiceToken: token,
		SSecurity:    s2.SSecurity,
		CUserID:      s2.CUserID,
		PassToken:    s2.PassToken,
		Username:     c.cfg.Username,
	}
	c.log.Debug().Str("user_id", c.creds.UserID).Msg("login complete")
	return nil
}

// signedParams encrypts and signs request parameters. The data payload is
// JSON-encoded, hashed, RC4-encrypted and then signed again over the
// ciphertext, with the nonce travelling alongside.
func (c *MiCloud) signedParams(method, path string, params map[string]any) (map[string]string, error) {
	if !c.creds.Complete() {
		return nil, errors.New("no credentials: login first")
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	nonce := auth.Nonce()
	snonce, err := auth.SignedNonce(c.creds.SSecurity, nonce)
	if err != nil {
		return nil, err
	}

	rq := map[string]string{"data": string(data)}
	rq["rc4_hash__"] = auth.Signature(method, path, rq, snonce)
	for k, v := range rq {
		enc, err := auth.EncryptParam(snonce, v)
		if err != nil {
			return nil, err
		}
		rq[k] = enc
	}
	rq["signature"] = auth.Signature(method, path, rq, snonce)
	rq["_nonce"] = nonce
	return rq, nil
}

// CallJSON performs a signed GET and decrypts the enveloped response into out.
func (c *MiCloud) CallJSON(api string, params map[string]any, out any) error {
	u, err := url.Parse(api)
	if err != nil {
		return fmt.Errorf("parse api url: %w", err)
	}

	rq, err := c.signedParams("GET", u.Path, params)
	if err != nil {
		return err
	}
	// The response is encrypted under the same nonce the request was signed
	// with.
	snonce, err := auth.SignedNonce(c.creds.SSecurity, rq["_nonce"])
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetQueryParams(rq).
		SetHeader("Accept", "*/*").
		SetHeader("miot-encrypt-algorithm", "ENCRYPT-RC4").
		SetCookies(c.sessionCookies()).
		Get(api)
	if err != nil {
		return fmt.Errorf("call %s: %w", u.Path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("call %s failed: %s", u.Path, resp.Status())
	}

	plain, err := auth.DecryptBody(snonce, resp.Body())
	if err != nil {
		return fmt.Errorf("decrypt %s response: %w", u.Path, err)
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("parse %s response: %w", u.Path, err)
	}
	return nil
}

// SignedURL builds a pre-signed URL for endpoints that are fetched directly
// (the playlist endpoint). The service token rides along as a query
// parameter because the media CDN does not read cookies.
func (c *MiCloud) SignedURL(api string, params map[string]any) (string, error) {
	u, err := url.Parse(api)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	rq, err := c.signedParams("GET", u.Path, params)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	for k, v := range rq {
		q.Set(k, v)
	}
	q.Set("yetAnotherServiceToken", c.creds.ServiceToken)
	return api + "?" + q.Encode(), nil
}

// Fetch performs a plain GET for playlists, keys and segments.
func (c *MiCloud) Fetch(rawURL string) ([]byte, error) {
	resp, err := c.http.R().SetCookies(c.sessionCookies()).Get(rawURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch failed: %s", resp.Status())
	}
	return resp.Body(), nil
}
