package hydroshare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the HydroShare REST API root
	DefaultBaseURL = "https://www.hydroshare.org/hsapi"

	// DefaultSiteURL is where resource landing pages live
	DefaultSiteURL = "https://www.hydroshare.org"

	maxMessageBytes = 4096
)

// Client is a thin typed wrapper over the HydroShare resource API.
// It implements simplesubmit.Repository. Requests are never retried.
type Client struct {
	baseURL     string
	siteURL     string
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
}

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// WithBaseURL sets the API root (e.g. https://www.hydroshare.org/hsapi)
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithSiteURL sets the site root used to build resource URLs
func WithSiteURL(siteURL string) ClientOption {
	return func(c *Client) {
		c.siteURL = strings.TrimRight(siteURL, "/")
	}
}

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTokenSource authorizes every request with a bearer token from ts
func WithTokenSource(ts oauth2.TokenSource) ClientOption {
	return func(c *Client) {
		c.tokenSource = ts
	}
}

// WithToken authorizes every request with a fixed bearer token
func WithToken(token string) ClientOption {
	return WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// New creates a new HydroShare client
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		siteURL:    DefaultSiteURL,
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.tokenSource != nil {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		authorized := *c.httpClient
		authorized.Transport = &oauth2.Transport{Source: c.tokenSource, Base: base}
		c.httpClient = &authorized
	}

	return c
}

var _ simplesubmit.Repository = (*Client)(nil)

type createResponse struct {
	ResourceID string `json:"resource_id"`
}

// CreateResource creates a resource and returns the ID assigned by HydroShare
func (c *Client) CreateResource(ctx context.Context, req simplesubmit.CreateResourceRequest) (string, error) {
	const op = "Creating resource"

	coverages := req.Coverages
	if coverages == nil {
		coverages = []map[string]simplesubmit.Coverage{}
	}
	metadataJSON, err := json.Marshal(coverages)
	if err != nil {
		return "", fmt.Errorf("failed to encode coverage metadata: %w", err)
	}

	extraJSON := []byte("{}")
	if len(req.ExtraMetadata) > 0 {
		if extraJSON, err = json.Marshal(req.ExtraMetadata); err != nil {
			return "", fmt.Errorf("failed to encode extra metadata: %w", err)
		}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"resource_type", req.ResourceType},
		{"title", req.Title},
		{"abstract", req.Abstract},
	}
	for i, kw := range req.Keywords {
		fields = append(fields, [2]string{fmt.Sprintf("keywords[%d]", i), kw})
	}
	fields = append(fields,
		[2]string{"metadata", string(metadataJSON)},
		[2]string{"extra_metadata", string(extraJSON)},
	)
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	respBody, status, err := c.do(ctx, op, http.MethodPost, "/resource/", mw.FormDataContentType(), &body, isSuccess)
	if err != nil {
		return "", err
	}

	var created createResponse
	if err := json.Unmarshal(respBody, &created); err != nil || created.ResourceID == "" {
		return "", &simplesubmit.TransportError{Op: op, StatusCode: status, Err: simplesubmit.ErrMissingResourceID}
	}

	return created.ResourceID, nil
}

// SetScienceMetadata replaces funding agencies and creators. HydroShare answers 202.
func (c *Client) SetScienceMetadata(ctx context.Context, resourceID string, meta simplesubmit.ScienceMetadata) error {
	return c.doJSON(ctx, "Updating science metadata", http.MethodPut,
		fmt.Sprintf("/resource/%s/scimeta/elements/", resourceID), meta, statusIs(http.StatusAccepted))
}

// UploadFile attaches a single file to the resource
func (c *Client) UploadFile(ctx context.Context, resourceID string, file simplesubmit.File) error {
	op := fmt.Sprintf("Uploading file %s", file.Name)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Name)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if file.Reader != nil {
		if _, err := io.Copy(part, file.Reader); err != nil {
			return fmt.Errorf("failed to read file %s: %w", file.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}

	_, _, err = c.do(ctx, op, http.MethodPost, fmt.Sprintf("/resource/%s/files/", resourceID),
		mw.FormDataContentType(), &body, isSuccess)
	return err
}

// SetAccessRules makes the resource public or private. HydroShare answers 200.
func (c *Client) SetAccessRules(ctx context.Context, resourceID string, public bool) error {
	return c.doJSON(ctx, "Setting access rules", http.MethodPut,
		fmt.Sprintf("/resource/accessRules/%s/", resourceID), map[string]bool{"public": public}, statusIs(http.StatusOK))
}

// SetFlag sets one resource flag. HydroShare answers 202.
func (c *Client) SetFlag(ctx context.Context, resourceID string, flag simplesubmit.Flag) error {
	return c.doJSON(ctx, fmt.Sprintf("Setting flag %s", flag), http.MethodPost,
		fmt.Sprintf("/resource/%s/flag/", resourceID), map[string]simplesubmit.Flag{"flag": flag}, statusIs(http.StatusAccepted))
}

// SetCustomMetadata posts key/value metadata
func (c *Client) SetCustomMetadata(ctx context.Context, resourceID string, meta map[string]string) error {
	return c.doJSON(ctx, "Setting custom metadata", http.MethodPost,
		fmt.Sprintf("/resource/%s/scimeta/custom/", resourceID), meta, isSuccess)
}

// ResourceURL returns the landing page of a resource
func (c *Client) ResourceURL(resourceID string) string {
	return fmt.Sprintf("%s/resource/%s", c.siteURL, resourceID)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, payload interface{}, ok func(int) bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	_, _, err = c.do(ctx, op, method, path, "application/json", bytes.NewReader(data), ok)
	return err
}

// do performs one request. Responses rejected by ok become TransportErrors
// carrying the status and the response body as message.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, ok func(int) bool) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &simplesubmit.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, &simplesubmit.TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if !ok(resp.StatusCode) {
		return nil, resp.StatusCode, &simplesubmit.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    responseMessage(respBody, resp.Header.Get("Content-Type")),
		}
	}

	return respBody, resp.StatusCode, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusIs(expected int) func(int) bool {
	return func(status int) bool {
		return status == expected
	}
}

// responseMessage turns an error body into a message. Error pages served as
// HTML are reduced to their heading or title.
func responseMessage(body []byte, contentType string) string {
	msg := strings.TrimSpace(string(body))
	if strings.Contains(contentType, "text/html") {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			for _, sel := range []string{"h1", "title"} {
				if text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " "); text != "" {
					msg = text
					break
				}
			}
		}
	}
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}
	return msg
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
