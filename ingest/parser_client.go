package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ParserClient talks to the external document conversion service that
// turns a (single page) PDF into markdown text.
type ParserClient struct {
	url    string
	client *http.Client
}

type parserResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}

func NewParserClient(url string) *ParserClient {
	if url == "" {
		return nil
	}
	return &ParserClient{
		url:    url,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Convert posts the file and returns the extracted markdown.
func (p *ParserClient) Convert(ctx context.Context, name string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("parser request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("parser error: status %d, body: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var d parserResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return "", fmt.Errorf("parser response: %w", err)
	}
	return d.Document.MdContent, nil
}
