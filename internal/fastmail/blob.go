package fastmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"mailbridge/internal/charset"
	"mailbridge/internal/provider"
	"mailbridge/internal/tracing"
)

// Blob transfer errors.
var (
	ErrBlobNotFound   = errors.New("blob not found")
	ErrBlobTransfer   = errors.New("blob transfer failed")
	ErrBlobUploadSize = errors.New("blob upload rejected as too large")
)

// UploadResult is the server's description of an uploaded blob.
type UploadResult struct {
	AccountID string `json:"accountId"`
	BlobID    string `json:"blobId"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
}

// UploadBlob pushes raw bytes to the account's upload endpoint and
// returns the blob reference. Transient server errors are retried.
func (c *Client) UploadBlob(ctx context.Context, contentType string, data []byte) (*UploadResult, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.UploadBlob",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.ContentType(contentType)))
	defer span.End()

	url := c.session.BlobUploadURL(c.accountID)
	delay := c.blobRetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.blobRetries; attempt++ {
		if attempt > 0 {
			c.sleepFunc(delay)
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrBlobTransfer, err)
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusRequestEntityTooLarge:
			err := fmt.Errorf("%w: %d bytes", ErrBlobUploadSize, len(data))
			tracing.RecordError(span, err)
			return nil, err
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: upload status %d", ErrBlobTransfer, resp.StatusCode)
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			err := fmt.Errorf("%w: upload status %d", ErrBlobTransfer, resp.StatusCode)
			tracing.RecordError(span, err)
			return nil, err
		case readErr != nil:
			lastErr = fmt.Errorf("%w: %v", ErrBlobTransfer, readErr)
			continue
		}

		var result UploadResult
		if err := json.Unmarshal(body, &result); err != nil {
			err := fmt.Errorf("%w: %v", ErrBlobTransfer, err)
			tracing.RecordError(span, err)
			return nil, err
		}
		span.SetAttributes(tracing.BlobID(result.BlobID))
		return &result, nil
	}
	tracing.RecordError(span, lastErr)
	return nil, lastErr
}

// DownloadBlob fetches raw blob bytes from the download endpoint.
func (c *Client) DownloadBlob(ctx context.Context, blobID, name, contentType string) ([]byte, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.DownloadBlob",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.BlobID(blobID)))
	defer span.End()

	url := c.session.BlobDownloadURL(c.accountID, blobID, name, contentType)
	delay := c.blobRetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.blobRetries; attempt++ {
		if attempt > 0 {
			c.sleepFunc(delay)
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrBlobTransfer, err)
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			err := fmt.Errorf("%w: %s", ErrBlobNotFound, blobID)
			tracing.RecordError(span, err)
			return nil, err
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: download status %d", ErrBlobTransfer, resp.StatusCode)
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			err := fmt.Errorf("%w: download status %d", ErrBlobTransfer, resp.StatusCode)
			tracing.RecordError(span, err)
			return nil, err
		case readErr != nil:
			lastErr = fmt.Errorf("%w: %v", ErrBlobTransfer, readErr)
			continue
		}
		return body, nil
	}
	tracing.RecordError(span, lastErr)
	return nil, lastErr
}

// GetAttachment downloads one attachment of a message, identified by
// its blob reference, and returns the content base64url-encoded without
// padding.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) (*provider.AttachmentData, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.GetAttachment",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID), tracing.BlobID(attachmentID)))
	defer span.End()

	attachment, err := c.findAttachment(ctx, messageID, attachmentID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	data, err := c.DownloadBlob(ctx, attachment.ID, attachment.Name, attachment.MIMEType)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return &provider.AttachmentData{
		Data: base64.RawURLEncoding.EncodeToString(data),
		Size: int64(len(data)),
	}, nil
}

// GetAttachmentText downloads a text attachment and decodes it to a
// UTF-8 string, honoring the declared charset. Non-text attachments are
// refused.
func (c *Client) GetAttachmentText(ctx context.Context, messageID, attachmentID string) (string, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.GetAttachmentText",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID), tracing.BlobID(attachmentID)))
	defer span.End()

	attachment, err := c.findAttachment(ctx, messageID, attachmentID)
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	if !strings.HasPrefix(attachment.MIMEType, "text/") {
		err := fmt.Errorf("%w: %s", ErrNotTextContent, attachment.MIMEType)
		tracing.RecordError(span, err)
		return "", err
	}

	data, err := c.DownloadBlob(ctx, attachment.ID, attachment.Name, attachment.MIMEType)
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	text, fallback := charset.DecodeMIME(data, attachment.MIMEType)
	if fallback {
		c.logger.WarnContext(ctx, "charset decode fell back to latin-1",
			slog.String("account_id", c.accountID),
			slog.String("content_type", attachment.MIMEType),
		)
	}
	return text, nil
}

// findAttachment resolves an attachment reference on a message.
func (c *Client) findAttachment(ctx context.Context, messageID, attachmentID string) (*provider.Attachment, error) {
	message, err := c.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	for _, a := range message.Attachments {
		if a.ID == attachmentID {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: attachment %s on message %s", provider.ErrNotFound, attachmentID, messageID)
}
