package models

import "strings"

// DeviceListResponse represents the outer wrapper of the device list response
type DeviceListResponse struct {
	Result struct {
		List []Device `json:"list"`
	} `json:"result"`
}

// Device is a single account device as reported by the cloud
type Device struct {
	DID   string `json:"did"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Model prefixes of the device families this tool can download video from.
const (
	doorbellPrefix = "madv.cateye."
	lockPrefix     = "xiaomi.lock."
)

// Kind classifies a device by model prefix.
func (d Device) Kind() string {
	switch {
	case strings.HasPrefix(d.Model, doorbellPrefix):
		return "doorbell"
	case strings.HasPrefix(d.Model, lockPrefix):
		return "lock"
	default:
		return ""
	}
}

// Supported reports whether the device family is one we can sync.
func (d Device) Supported() bool {
	return d.Kind() != ""
}
