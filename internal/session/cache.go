// Package session persists and validates cached login state so a sync run
// can skip the live login when the cached credentials are still usable.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiminghaoo/save-mi-doorbell-video/internal/cloud"
	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

// MaxAge is the cache freshness window. Entries older than this are treated
// as absent.
const MaxAge = 24 * time.Hour

// AuthError marks a failed live login or validation. It is fatal for the run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// Cache stores credentials as a single JSON document on disk.
type Cache struct {
	path string
	now  func() time.Time
	log  zerolog.Logger
}

func NewCache(path string, log zerolog.Logger) *Cache {
	return &Cache{
		path: path,
		now:  time.Now,
		log:  log.With().Str("component", "session").Logger(),
	}
}

// Load returns the cached credentials when they exist, parse cleanly, are
// younger than MaxAge and belong to expectedUsername. Every failure mode is
// a cache miss, never an error.
func (c *Cache) Load(expectedUsername string) (models.Credentials, bool) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Warn().Err(err).Msg("reading session cache failed")
		}
		return models.Credentials{}, false
	}

	var creds models.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		c.log.Warn().Err(err).Msg("session cache is malformed")
		return models.Credentials{}, false
	}

	// A timestamp in the future means a skewed or tampered file; treat it
	// like an expired entry rather than trusting it for another 24h.
	age := c.now().Sub(time.Unix(creds.Timestamp, 0))
	if age > MaxAge || age < 0 {
		c.log.Info().Dur("age", age).Msg("session cache expired")
		return models.Credentials{}, false
	}
	if creds.Username != expectedUsername {
		c.log.Info().Msg("session cache belongs to a different account")
		return models.Credentials{}, false
	}
	return creds, true
}

// Save persists the credentials, stamping them with the current time.
// Failures are logged and swallowed: a missing cache only costs a login.
func (c *Cache) Save(creds models.Credentials) {
	creds.Timestamp = c.now().Unix()
	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		c.log.Warn().Err(err).Msg("encoding session cache failed")
		return
	}
	if err := os.WriteFile(c.path, raw, 0o600); err != nil {
		c.log.Warn().Err(err).Msg("writing session cache failed")
		return
	}
	c.log.Info().Str("path", c.path).Msg("session cached")
}

// Invalidate removes the cache. A missing file is not an error.
func (c *Cache) Invalidate() {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn().Err(err).Msg("removing session cache failed")
		return
	}
	c.log.Debug().Msg("session cache cleared")
}

// Validate checks cached credentials against the live cloud with one
// lightweight device-list call. Any error or empty result is invalid.
func (c *Cache) Validate(sess cloud.Session) bool {
	devices, err := sess.ListDevices()
	if err != nil {
		c.log.Debug().Err(err).Msg("session validation failed")
		return false
	}
	return len(devices) > 0
}

// Acquire establishes a usable session on sess: cache first unless forced,
// falling back to a live login. A failed live login clears the cache and
// returns an AuthError.
func (c *Cache) Acquire(sess cloud.Session, username string, force bool) error {
	if !force {
		if creds, ok := c.Load(username); ok {
			sess.Restore(creds)
			if c.Validate(sess) {
				c.log.Info().Msg("using cached session")
				return nil
			}
			c.log.Info().Msg("cached session rejected by cloud, logging in")
			c.Invalidate()
		}
	}

	if err := sess.Login(); err != nil {
		c.Invalidate()
		return &AuthError{Err: err}
	}
	c.Save(sess.Credentials())
	return nil
}

// Info summarizes the cache state for display.
type Info struct {
	Present  bool    `json:"present"`
	Username string  `json:"username,omitempty"`
	AgeHours float64 `json:"age_hours,omitempty"`
	Expired  bool    `json:"expired,omitempty"`
}

// Inspect reports the cache state without touching the cloud.
func (c *Cache) Inspect() (Info, error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, err
	}
	var creds models.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Info{}, fmt.Errorf("parse session cache: %w", err)
	}
	age := c.now().Sub(time.Unix(creds.Timestamp, 0))
	return Info{
		Present:  true,
		Username: creds.Username,
		AgeHours: age.Hours(),
		Expired:  age > MaxAge,
	}, nil
}
