package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"smartdesk/internal/config"
	"smartdesk/internal/core"
	"smartdesk/internal/logger"
	"smartdesk/internal/secrets"
)

// OCR extracts text from message attachments. Images and PDFs go to the
// external OCR engine over HTTP; plain-text documents are decoded locally.
// Reimplementing OCR itself is out of scope.
type OCR struct {
	cfg    config.OCRConfig
	apiKey string
	client *http.Client
	log    zerolog.Logger
}

func NewOCR(cfg config.OCRConfig, sec *secrets.Store) *OCR {
	// The engine may be a local daemon with no key; absence is fine.
	apiKey, _ := sec.Get("OCR_API_KEY")
	return &OCR{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{},
		log:    logger.With("ocr"),
	}
}

type ocrRequest struct {
	FileName string `json:"file_name"`
	MIME     string `json:"mime"`
	Data     string `json:"data"` // base64
}

type ocrResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Extract returns the text content of an attachment.
func (o *OCR) Extract(ctx context.Context, att core.Attachment) (string, error) {
	switch att.MIME {
	case "text/plain", "text/markdown":
		return strings.TrimSpace(string(att.Data)), nil
	}
	name := strings.ToLower(att.Name)
	if strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".md") {
		return strings.TrimSpace(string(att.Data)), nil
	}

	body, err := sonic.Marshal(ocrRequest{
		FileName: att.Name,
		MIME:     att.MIME,
		Data:     base64.StdEncoding.EncodeToString(att.Data),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}

	callCtx, cancel := callTimeout(ctx, o.cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: OCR engine unreachable: %v", core.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: OCR engine returned status %d", core.ErrProviderUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}

	var parsed ocrResponse
	if err := sonic.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: OCR engine: %s", core.ErrProviderUnavailable, parsed.Error)
	}
	return strings.TrimSpace(parsed.Text), nil
}
