package sync

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/weiminghaoo/save-mi-doorbell-video/internal/cloud"
	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

// fileListName is the ordered segment manifest consumed by the merge tool.
const fileListName = "filelist"

// Retriever fetches an event's HLS playlist, downloads every segment and
// decrypts it with the key/IV announced in the playlist.
type Retriever struct {
	sess cloud.Session
	log  zerolog.Logger
}

func NewRetriever(sess cloud.Session, log zerolog.Logger) *Retriever {
	return &Retriever{
		sess: sess,
		log:  log.With().Str("component", "retriever").Logger(),
	}
}

// Retrieve downloads all segments of ev into segDir as 1.ts, 2.ts, ... and
// writes the ordered file list alongside them. Returns the segment count and
// the file list path. Any fetch or decrypt failure aborts the whole event:
// partial segment sets are never reported as success.
func (r *Retriever) Retrieve(device models.Device, ev models.Event, segDir string) (int, string, error) {
	playlistURL, err := r.playlistURL(device, ev)
	if err != nil {
		return 0, "", &RetrievalError{FileID: ev.FileID, Err: err}
	}
	playlist, err := r.sess.Fetch(playlistURL)
	if err != nil {
		return 0, "", &RetrievalError{FileID: ev.FileID, Err: fmt.Errorf("fetch playlist: %w", err)}
	}

	listPath := filepath.Join(segDir, fileListName)
	list, err := os.Create(listPath)
	if err != nil {
		return 0, "", &FilesystemError{Path: listPath, Err: err}
	}
	defer list.Close()

	var key, iv []byte
	count := 0
	for _, line := range strings.Split(string(playlist), "\n") {
		line = strings.TrimRight(line, "\r")

		switch {
		case strings.HasPrefix(line, "#EXT-X-KEY"):
			// A new key line replaces the key/IV for all following segments.
			// The source format carries one per event, but nothing here
			// depends on that.
			key, iv, err = r.fetchKey(line)
			if err != nil {
				return 0, "", &RetrievalError{FileID: ev.FileID, Err: err}
			}

		case strings.HasPrefix(line, "http"):
			if key == nil {
				return 0, "", &RetrievalError{FileID: ev.FileID, Err: fmt.Errorf("segment before key line in playlist")}
			}
			raw, err := r.sess.Fetch(line)
			if err != nil {
				return 0, "", &RetrievalError{FileID: ev.FileID, Err: fmt.Errorf("fetch segment %d: %w", count+1, err)}
			}
			plain, err := decryptCBC(key, iv, raw)
			if err != nil {
				return 0, "", &RetrievalError{FileID: ev.FileID, Err: fmt.Errorf("decrypt segment %d: %w", count+1, err)}
			}

			count++
			name := strconv.Itoa(count) + ".ts"
			if err := os.WriteFile(filepath.Join(segDir, name), plain, 0o644); err != nil {
				return 0, "", &FilesystemError{Path: filepath.Join(segDir, name), Err: err}
			}
			if _, err := fmt.Fprintf(list, "file '%s'\n", name); err != nil {
				return 0, "", &FilesystemError{Path: listPath, Err: err}
			}
		}
	}

	r.log.Debug().Str("file_id", ev.FileID).Int("segments", count).Msg("event retrieved")
	return count, listPath, nil
}

// playlistURL builds the signed m3u8 URL for the event.
func (r *Retriever) playlistURL(device models.Device, ev models.Event) (string, error) {
	return r.sess.SignedURL(cloud.PlaylistAPI, map[string]any{
		"did":        device.DID,
		"model":      device.Model,
		"fileId":     ev.FileID,
		"isAlarm":    true,
		"videoCodec": "H265",
	})
}

// fetchKey parses an #EXT-X-KEY line, fetching the key bytes from the URI
// attribute and decoding the hex IV.
func (r *Retriever) fetchKey(line string) (key, iv []byte, err error) {
	uriStart := strings.Index(line, `URI="`)
	if uriStart < 0 {
		return nil, nil, fmt.Errorf("key line has no URI attribute: %s", line)
	}
	rest := line[uriStart+len(`URI="`):]
	uriEnd := strings.Index(rest, `"`)
	if uriEnd < 0 {
		return nil, nil, fmt.Errorf("key line has unterminated URI: %s", line)
	}
	keyURL := rest[:uriEnd]

	ivIdx := strings.Index(line, "IV=")
	if ivIdx < 0 {
		return nil, nil, fmt.Errorf("key line has no IV attribute: %s", line)
	}
	ivHex := line[ivIdx+len("IV="):]
	ivHex = strings.TrimPrefix(ivHex, "0x")
	ivHex = strings.TrimPrefix(ivHex, "0X")
	if comma := strings.IndexAny(ivHex, ", "); comma >= 0 {
		ivHex = ivHex[:comma]
	}
	iv, err = hex.DecodeString(ivHex)
	if err != nil {
		return nil, nil, fmt.Errorf("decode IV: %w", err)
	}

	key, err = r.sess.Fetch(keyURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch key: %w", err)
	}
	return key, iv, nil
}

// decryptCBC decrypts one segment with AES-CBC.
func decryptCBC(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("IV length %d does not match block size", len(iv))
	}
	if len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}
