package cloud

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

const deviceListAPI = "https://api.io.mi.com/app/home/device_list"

// apiURL prefixes the home API host with the configured region. The mainland
// region uses the bare host.
func (c *MiCloud) apiURL(base string) string {
	if c.cfg.Server == "" || strings.EqualFold(c.cfg.Server, "cn") {
		return base
	}
	return strings.Replace(base, "https://api.", "https://"+strings.ToLower(c.cfg.Server)+".api.", 1)
}

// sessionCookies returns the credential cookies attached to signed calls.
func (c *MiCloud) sessionCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: "userId", Value: c.creds.UserID},
		{Name: serviceTokenName, Value: c.creds.ServiceToken},
		{Name: "yetAnotherServiceToken", Value: c.creds.ServiceToken},
	}
}

// ListDevices fetches the account device list.
func (c *MiCloud) ListDevices() ([]models.Device, error) {
	var respData models.DeviceListResponse

	params := map[string]any{
		"getVirtualModel": false,
		"getHuamiDevices": 0,
	}
	if err := c.CallJSON(c.apiURL(deviceListAPI), params, &respData); err != nil {
		return nil, fmt.Errorf("device list: %w", err)
	}
	return respData.Result.List, nil
}
