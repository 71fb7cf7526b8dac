package cloud

import "github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"

// API endpoints of the smart-camera business service. Event listing and
// playlist retrieval both go through the signed-request path.
const (
	EventListAPI = "https://business.smartcamera.api.io.mi.com/common/app/get/eventlist"
	PlaylistAPI  = "https://business.smartcamera.api.io.mi.com/common/app/m3u8"
)

// Session is the authenticated cloud capability the sync pipeline depends on.
// Implementations own the login dance and request signing; callers only see
// signed calls, pre-signed URLs and raw fetches.
type Session interface {
	// Login performs a live account login and replaces the credentials.
	Login() error

	// ListDevices returns the account's device records.
	ListDevices() ([]models.Device, error)

	// CallJSON performs a signed GET against a cloud API, decrypting the
	// response into out.
	CallJSON(api string, params map[string]any, out any) error

	// SignedURL builds a pre-signed URL for a direct fetch (e.g. the HLS
	// playlist endpoint).
	SignedURL(api string, params map[string]any) (string, error)

	// Fetch performs a plain GET and returns the raw body. Used for
	// playlists, keys and media segments, which are not envelope-encrypted.
	Fetch(url string) ([]byte, error)

	// Credentials returns the current credential bundle for caching.
	Credentials() models.Credentials

	// Restore installs a previously cached credential bundle.
	Restore(models.Credentials)
}
