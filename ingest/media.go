package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Abraxas-365/craftable/logx"
	"github.com/mygads/govconnect-channelgateway/pkg/config"
)

// MediaResult is what a successful save produces; zero value means
// media could not be fetched (the message still proceeds with
// hasMedia=true and no URLs, per spec.md §4.7).
type MediaResult struct {
	InternalURL string
	PublicURL   string
}

// MediaStore fetches inbound media (by remote URL or inline base64) and
// uploads it to the configured S3 bucket, best-effort and non-blocking to
// the save path.
type MediaStore struct {
	s3Client *s3.Client
	cfg      config.MediaConfig
	http     *http.Client
}

func NewMediaStore(s3Client *s3.Client, cfg config.MediaConfig) *MediaStore {
	return &MediaStore{s3Client: s3Client, cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}
}

// Save attempts, in order: a remote S3 URL fetch, an inline base64
// payload, then a JPEG thumbnail fallback. A failure at any stage
// returns a zero MediaResult rather than an error — callers log and move
// on.
func (m *MediaStore) Save(ctx context.Context, channelIdentifier, messageID string, msg *WebhookMessage) MediaResult {
	switch {
	case msg.S3URL != "":
		data, ext, err := m.fetchURL(ctx, msg.S3URL)
		if err != nil {
			logx.Error("ingest: media fetch from %s failed: %v", msg.S3URL, err)
			return MediaResult{}
		}
		return m.store(ctx, channelIdentifier, messageID, ext, data)

	case msg.Base64 != "":
		data, err := base64.StdEncoding.DecodeString(msg.Base64)
		if err != nil {
			logx.Error("ingest: media base64 decode failed: %v", err)
			return MediaResult{}
		}
		return m.store(ctx, channelIdentifier, messageID, extFromMime(msg.MimeType), data)

	case msg.JPEGThumb != "":
		data, err := base64.StdEncoding.DecodeString(msg.JPEGThumb)
		if err != nil {
			logx.Error("ingest: media thumbnail decode failed: %v", err)
			return MediaResult{}
		}
		return m.store(ctx, channelIdentifier, messageID, "jpg", data)
	}

	return MediaResult{}
}

// UploadBytes stores an admin-supplied file directly (the multipart
// upload endpoint), reusing the same key layout and URL formatting as
// webhook media.
func (m *MediaStore) UploadBytes(ctx context.Context, channelIdentifier, fileID, mimeType string, data []byte) (MediaResult, error) {
	result := m.store(ctx, channelIdentifier, fileID, extFromMime(mimeType), data)
	if result == (MediaResult{}) {
		return result, fmt.Errorf("media upload failed")
	}
	return result, nil
}

func (m *MediaStore) fetchURL(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("media fetch status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, extFromMime(resp.Header.Get("Content-Type")), nil
}

func (m *MediaStore) store(ctx context.Context, channelIdentifier, messageID, ext string, data []byte) MediaResult {
	key := fmt.Sprintf("%s/%s_%d.%s", channelIdentifier, messageID, time.Now().Unix(), ext)

	_, err := m.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.cfg.StorageBucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		logx.Error("ingest: media upload to s3 key %s failed: %v", key, err)
		return MediaResult{}
	}

	return MediaResult{
		InternalURL: fmt.Sprintf(m.cfg.InternalURLFmt, key),
		PublicURL:   fmt.Sprintf(m.cfg.PublicURLFmt, key),
	}
}

func extFromMime(mime string) string {
	switch {
	case strings.Contains(mime, "png"):
		return "png"
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return "jpg"
	case strings.Contains(mime, "pdf"):
		return "pdf"
	case strings.Contains(mime, "msword"):
		return "doc"
	case strings.Contains(mime, "wordprocessingml"):
		return "docx"
	default:
		return "bin"
	}
}
