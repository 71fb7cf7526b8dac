package sync

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

// fakeSession is the in-memory cloud.Session used by retriever, event source
// and driver tests.
type fakeSession struct {
	callJSON  func(api string, params map[string]any, out any) error
	signedURL string
	bodies    map[string][]byte // URL → response body
	failURLs  map[string]bool
	fetched   []string
}

func (f *fakeSession) Login() error { return nil }

func (f *fakeSession) ListDevices() ([]models.Device, error) { return nil, nil }

func (f *fakeSession) CallJSON(api string, params map[string]any, out any) error {
	if f.callJSON == nil {
		return errors.New("no callJSON stub")
	}
	return f.callJSON(api, params, out)
}

func (f *fakeSession) SignedURL(string, map[string]any) (string, error) {
	return f.signedURL, nil
}

func (f *fakeSession) Fetch(url string) ([]byte, error) {
	f.fetched = append(f.fetched, url)
	if f.failURLs[url] {
		return nil, fmt.Errorf("simulated fetch failure for %s", url)
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("404 for %s", url)
	}
	return body, nil
}

func (f *fakeSession) Credentials() models.Credentials { return models.Credentials{} }

func (f *fakeSession) Restore(models.Credentials) {}

// encryptCBC builds test ciphertext the way the cloud would.
func encryptCBC(t *testing.T, key, iv, plain []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return out
}

const testPlaylistURL = "https://playlist.example/m3u8"

func testKeyIV() (key, iv []byte) {
	key = bytes.Repeat([]byte{0x42}, 16)
	iv = []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	return
}

func testPlaylist(segments int) []byte {
	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	buf.WriteString(`#EXT-X-KEY:METHOD=AES-128,URI="https://keys.example/k1",IV=0x00112233445566778899aabbccddeeff` + "\n")
	for i := 1; i <= segments; i++ {
		buf.WriteString("#EXTINF:2.0,\n")
		fmt.Fprintf(&buf, "https://media.example/seg%d\n", i)
	}
	buf.WriteString("#EXT-X-ENDLIST\n")
	return buf.Bytes()
}

func TestRetriever_DecryptsSegmentsAndWritesFileList(t *testing.T) {
	key, iv := testKeyIV()
	plain1 := bytes.Repeat([]byte("segment-one-data"), 2) // 32 bytes
	plain2 := bytes.Repeat([]byte("segment-two-data"), 2)

	sess := &fakeSession{
		signedURL: testPlaylistURL,
		bodies: map[string][]byte{
			testPlaylistURL:            testPlaylist(2),
			"https://keys.example/k1":  key,
			"https://media.example/seg1": encryptCBC(t, key, iv, plain1),
			"https://media.example/seg2": encryptCBC(t, key, iv, plain2),
		},
	}

	segDir := t.TempDir()
	r := NewRetriever(sess, zerolog.Nop())
	dev := models.Device{DID: "d1", Model: "madv.cateye.v3", Name: "Front Door"}
	ev := models.Event{EventTime: 1700000000000, FileID: "file-1", EventType: "Bell"}

	count, fileList, err := r.Retrieve(dev, ev, segDir)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("segment count = %d, want 2", count)
	}

	// Decrypt correctness: byte-for-byte against the known plaintext.
	got1, err := os.ReadFile(filepath.Join(segDir, "1.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got1, plain1) {
		t.Fatal("segment 1 plaintext mismatch")
	}
	got2, err := os.ReadFile(filepath.Join(segDir, "2.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got2, plain2) {
		t.Fatal("segment 2 plaintext mismatch")
	}

	list, err := os.ReadFile(fileList)
	if err != nil {
		t.Fatal(err)
	}
	want := "file '1.ts'\nfile '2.ts'\n"
	if string(list) != want {
		t.Fatalf("file list = %q, want %q", list, want)
	}

	// The key is fetched once and reused for both segments.
	keyFetches := 0
	for _, u := range sess.fetched {
		if u == "https://keys.example/k1" {
			keyFetches++
		}
	}
	if keyFetches != 1 {
		t.Fatalf("key fetched %d times, want 1", keyFetches)
	}
}

func TestRetriever_SegmentFailureAbortsEvent(t *testing.T) {
	key, iv := testKeyIV()
	plain := bytes.Repeat([]byte("0123456789abcdef"), 2)

	sess := &fakeSession{
		signedURL: testPlaylistURL,
		bodies: map[string][]byte{
			testPlaylistURL:            testPlaylist(3),
			"https://keys.example/k1":  key,
			"https://media.example/seg1": encryptCBC(t, key, iv, plain),
			"https://media.example/seg3": encryptCBC(t, key, iv, plain),
		},
		failURLs: map[string]bool{"https://media.example/seg2": true},
	}

	r := NewRetriever(sess, zerolog.Nop())
	dev := models.Device{DID: "d1", Model: "madv.cateye.v3"}
	ev := models.Event{EventTime: 1700000000000, FileID: "file-1", EventType: "Pass"}

	_, _, err := r.Retrieve(dev, ev, t.TempDir())
	var rerr *RetrievalError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RetrievalError, got %T: %v", err, err)
	}
	if rerr.FileID != "file-1" {
		t.Fatalf("error carries fileId %q, want file-1", rerr.FileID)
	}
}

func TestRetriever_BadCiphertextLength(t *testing.T) {
	key, _ := testKeyIV()
	sess := &fakeSession{
		signedURL: testPlaylistURL,
		bodies: map[string][]byte{
			testPlaylistURL:            testPlaylist(1),
			"https://keys.example/k1":  key,
			"https://media.example/seg1": []byte("short"), // not a block multiple
		},
	}

	r := NewRetriever(sess, zerolog.Nop())
	_, _, err := r.Retrieve(models.Device{DID: "d1"}, models.Event{FileID: "f"}, t.TempDir())
	var rerr *RetrievalError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RetrievalError, got %v", err)
	}
}

func TestRetriever_SegmentBeforeKeyLine(t *testing.T) {
	sess := &fakeSession{
		signedURL: testPlaylistURL,
		bodies: map[string][]byte{
			testPlaylistURL: []byte("#EXTM3U\nhttps://media.example/seg1\n"),
		},
	}

	r := NewRetriever(sess, zerolog.Nop())
	_, _, err := r.Retrieve(models.Device{DID: "d1"}, models.Event{FileID: "f"}, t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a playlist with no key line")
	}
}
