package imagehost

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.cloudinary.com/v1_1"

// Remote is a client for a Cloudinary-compatible hosting API.
type Remote struct {
	apiURL    string
	cloud     string
	apiKey    string
	apiSecret string
	folder    string
	maxBytes  int64
	client    *http.Client
	now       func() time.Time
}

type RemoteConfig struct {
	APIURL    string
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// MaxBytes caps fetched files.
	MaxBytes int64
	Timeout  time.Duration
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		panic("cloud name and api credentials are required")
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Remote{
		apiURL:    strings.TrimSuffix(apiURL, "/"),
		cloud:     cfg.CloudName,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		folder:    cfg.Folder,
		maxBytes:  cfg.MaxBytes,
		client:    &http.Client{Timeout: timeout},
		now:       time.Now,
	}
}

// Upload sends the image as a signed upload.
func (h *Remote) Upload(ctx context.Context, name string, img io.Reader) (Asset, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(h.now().Unix(), 10),
	}
	if h.folder != "" {
		params["folder"] = h.folder
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range params {
		if err := w.WriteField(k, v); err != nil {
			return Asset{}, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.WriteField("api_key", h.apiKey); err != nil {
		return Asset{}, fmt.Errorf("write field api_key: %w", err)
	}
	if err := w.WriteField("signature", sign(params, h.apiSecret)); err != nil {
		return Asset{}, fmt.Errorf("write field signature: %w", err)
	}

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return Asset{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err = io.Copy(part, img); err != nil {
		return Asset{}, fmt.Errorf("copy image data: %w", err)
	}
	if err = w.Close(); err != nil {
		return Asset{}, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("image", "upload"), &body)
	if err != nil {
		return Asset{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var asset Asset
	if err = h.do(req, &asset); err != nil {
		return Asset{}, fmt.Errorf("upload image: %w", err)
	}
	if asset.PublicID == "" || asset.URL == "" {
		return Asset{}, fmt.Errorf("upload image: incomplete response")
	}

	return asset, nil
}

// Delete removes an uploaded image through the admin API.
func (h *Remote) Delete(ctx context.Context, publicID string) (DeleteResult, error) {
	q := url.Values{}
	q.Add("public_ids[]", publicID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, h.endpoint("resources", "image", "upload")+"?"+q.Encode(), nil)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(h.apiKey, h.apiSecret)

	var res DeleteResult
	if err = h.do(req, &res); err != nil {
		return DeleteResult{}, fmt.Errorf("delete image: %w", err)
	}

	return res, nil
}

// Fetch downloads the asset's bytes.
func (h *Remote) Fetch(ctx context.Context, a Asset) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get image: unexpected status code: %d", resp.StatusCode)
	}

	return readLimited(resp.Body, h.maxBytes)
}

func (h *Remote) endpoint(parts ...string) string {
	return h.apiURL + "/" + url.PathEscape(h.cloud) + "/" + strings.Join(parts, "/")
}

func (h *Remote) do(req *http.Request, out any) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var aerr apiError
		_ = json.NewDecoder(resp.Body).Decode(&aerr)
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, aerr.Error.Message)
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// sign computes the upload signature: the sorted key=value pairs joined by
// '&', followed by the secret, hashed with SHA-1.
func sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}

	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, ErrTooLarge
	}
	return b, nil
}
