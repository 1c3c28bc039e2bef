package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/constants"
	"github.com/matflow/matflow-cli/internal/http"
	"github.com/matflow/matflow-cli/internal/logging"
	"github.com/matflow/matflow-cli/internal/models"
)

// Endpoint paths of the dataset server.
const (
	PathDataset      = "/api/dataset/"
	PathReadFile     = "/api/read_file/"
	PathUpload       = "/api/upload/"
	PathCreateFolder = "/api/create-folder/"
	PathCreateFile   = "/api/create-file/"
	PathDelete       = "/api/delete/"
	PathEDA          = "/api/eda/"
	PathOptimize     = "/api/optimize/"
	PathPFS          = "/api/pfs/"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// retryLogger adapts the application logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg("[retry] " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("[retry] " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("[retry] " + msg)
}

// ProgressFunc receives the number of bytes sent so far and the total.
type ProgressFunc func(sent, total int64)

// Client talks to the Matflow dataset server.
type Client struct {
	httpClient     *nethttp.Client // API calls, wrapped in retries
	transferClient *nethttp.Client // uploads, single attempt
	baseURL        string
	readEndpoint   string
	logger         *logging.Logger
}

// NewClient creates a new API client.
func NewClient(cfg *config.APIConfig, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	httpClient, err := http.ConfigureHTTPClient(cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	transferClient, err := http.NewTransferClient(cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to configure transfer client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = constants.MaxRetries
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.CheckRetry = http.CheckRetry
	retryClient.Backoff = http.Backoff
	retryClient.Logger = &retryLogger{logger: logger}
	// Hand the last response back to the caller instead of a generic
	// "giving up" error so status handling stays in one place.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	readEndpoint := cfg.ReadEndpoint
	if readEndpoint == "" {
		readEndpoint = config.ReadEndpointDataset
	}

	return &Client{
		httpClient:     retryClient.StandardClient(),
		transferClient: transferClient,
		baseURL:        strings.TrimSuffix(cfg.APIURL, "/"),
		readEndpoint:   readEndpoint,
		logger:         logger,
	}, nil
}

// BaseURL returns the server base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest performs a JSON request against the server.
func (c *Client) doRequest(ctx context.Context, op, method, p string, query url.Values, body interface{}) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Op: op, Kind: KindValidation, Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		reqBody = bytes.NewReader(jsonData)
	}

	u := c.baseURL + p
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("path", p).Msg("api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", p).Msg("api request failed")
		return nil, &Error{Op: op, Kind: KindTransport, Err: err}
	}
	return resp, nil
}

// checkResponse converts a non-2xx response into a KindStatus error.
// The body is consumed and closed in that case.
func checkResponse(op string, resp *nethttp.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &Error{
		Op:         op,
		Kind:       KindStatus,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(data),
	}
}

// errorMessage extracts the server message from a JSON envelope or a plain
// text body.
func errorMessage(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '{' {
		var envelope models.ErrorResponse
		if err := json.Unmarshal(trimmed, &envelope); err == nil {
			if text := envelope.Text(); text != "" {
				return text
			}
		}
	}
	// HTML error pages are noise in a terminal.
	if trimmed[0] == '<' {
		return ""
	}
	msg := string(trimmed)
	if utf8.RuneCountInString(msg) > 200 {
		msg = string([]rune(msg)[:200]) + "..."
	}
	return msg
}

// readBody reads a successful response body.
func readBody(op string, resp *nethttp.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return data, nil
}

func malformed(op string, err error) error {
	return &Error{Op: op, Kind: KindMalformed, Err: err}
}

// GetDirectoryStructure fetches the full dataset tree.
func (c *Client) GetDirectoryStructure(ctx context.Context) (*models.DirectoryNode, error) {
	const op = "get directory structure"
	resp, err := c.doRequest(ctx, op, nethttp.MethodGet, PathDataset, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(op, resp); err != nil {
		return nil, err
	}
	data, err := readBody(op, resp)
	if err != nil {
		return nil, err
	}

	var root models.DirectoryNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, malformed(op, err)
	}
	return &root, nil
}

// ReadFile fetches the rows of one dataset file.
func (c *Client) ReadFile(ctx context.Context, folder, name string) (models.Rows, error) {
	const op = "read file"
	if name == "" {
		return nil, NewValidationError(op, "file name is required")
	}

	query := url.Values{}
	p := PathDataset
	if c.readEndpoint == config.ReadEndpointReadFile {
		p = PathReadFile
		if folder != "" {
			query.Set("folder", folder)
		}
	} else {
		// The dataset endpoint spells the root folder as "/".
		if folder == "" {
			folder = "/"
		}
		query.Set("folder", folder)
	}
	query.Set("file", name)

	resp, err := c.doRequest(ctx, op, nethttp.MethodGet, p, query, nil)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(op, resp); err != nil {
		return nil, err
	}
	data, err := readBody(op, resp)
	if err != nil {
		return nil, err
	}

	rows, err := models.DecodeRows(data)
	if err != nil {
		return nil, malformed(op, err)
	}
	return rows, nil
}

// UploadFile streams r to the server as a multipart form with "file" and
// "folder" fields. size is the number of bytes r will yield; pass -1 when
// unknown and the content is buffered first.
func (c *Client) UploadFile(ctx context.Context, folder, name string, r io.Reader, size int64, onProgress ProgressFunc) error {
	const op = "upload file"
	if name == "" {
		return NewValidationError(op, "file name is required")
	}

	if size < 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return &Error{Op: op, Kind: KindValidation, Err: fmt.Errorf("failed to read upload source: %w", err)}
		}
		r = bytes.NewReader(data)
		size = int64(len(data))
	}

	// Build the multipart envelope around the file so Content-Length is
	// known up front; the server does not accept chunked bodies.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("folder", folder); err != nil {
		return &Error{Op: op, Kind: KindValidation, Err: err}
	}
	if _, err := mw.CreateFormFile("file", name); err != nil {
		return &Error{Op: op, Kind: KindValidation, Err: err}
	}
	head := append([]byte(nil), buf.Bytes()...)
	buf.Reset()
	if err := mw.Close(); err != nil {
		return &Error{Op: op, Kind: KindValidation, Err: err}
	}
	tail := append([]byte(nil), buf.Bytes()...)

	body := io.MultiReader(
		bytes.NewReader(head),
		&countingReader{r: r, total: size, onProgress: onProgress},
		bytes.NewReader(tail),
	)

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+PathUpload, body)
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Err: err}
	}
	req.ContentLength = int64(len(head)) + size + int64(len(tail))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("file", name).Str("folder", folder).Int64("size", size).Msg("uploading")

	resp, err := c.transferClient.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Err: err}
	}
	if err := checkResponse(op, resp); err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// countingReader reports bytes read through onProgress.
type countingReader struct {
	r          io.Reader
	total      int64
	sent       int64
	onProgress ProgressFunc
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.sent += int64(n)
		if cr.onProgress != nil {
			cr.onProgress(cr.sent, cr.total)
		}
	}
	return n, err
}

// CreateFolder creates name inside parent ("" for the root).
func (c *Client) CreateFolder(ctx context.Context, name, parent string) error {
	const op = "create folder"
	if strings.TrimSpace(name) == "" {
		return NewValidationError(op, "folder name is required")
	}
	if strings.Contains(name, "/") {
		return NewValidationError(op, "folder name must not contain '/'")
	}

	body := models.CreateFolderRequest{FolderName: name, Parent: parent}
	resp, err := c.doRequest(http.WithoutRetry(ctx), op, nethttp.MethodPost, PathCreateFolder, nil, body)
	if err != nil {
		return err
	}
	if err := checkResponse(op, resp); err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Delete removes a file (file != "") or a whole folder (file == "").
func (c *Client) Delete(ctx context.Context, folder, file string) error {
	op := "delete folder"
	if file != "" {
		op = "delete file"
	} else if folder == "" {
		return NewValidationError(op, "refusing to delete the dataset root")
	}

	query := url.Values{}
	query.Set("folder", folder)
	if file != "" {
		query.Set("file", file)
	}

	resp, err := c.doRequest(http.WithoutRetry(ctx), op, nethttp.MethodDelete, PathDelete, query, nil)
	if err != nil {
		return err
	}
	if err := checkResponse(op, resp); err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// DerivedFileName returns the name a derived dataset is saved under:
// ".csv" is appended unless the name already ends in .csv or .xlsx.
func DerivedFileName(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".csv", ".xlsx":
		return filename
	default:
		return filename + ".csv"
	}
}

// CreateFile stores rows as a new dataset file in folder. It returns the
// file name actually used.
func (c *Client) CreateFile(ctx context.Context, rows models.Rows, filename, folder string) (string, error) {
	const op = "create file"
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", NewValidationError(op, "file name is required")
	}
	if strings.Contains(filename, "/") {
		return "", NewValidationError(op, "file name must not contain '/'")
	}
	if rows == nil {
		rows = models.Rows{}
	}
	filename = DerivedFileName(filename)

	body := models.CreateFileRequest{Data: rows, Filename: filename, FolderName: folder}
	resp, err := c.doRequest(http.WithoutRetry(ctx), op, nethttp.MethodPost, PathCreateFile, nil, body)
	if err != nil {
		return "", err
	}
	if err := checkResponse(op, resp); err != nil {
		return "", err
	}
	resp.Body.Close()
	return filename, nil
}

// Plot posts a plot request to /api/eda/<plotType>/.
func (c *Client) Plot(ctx context.Context, plotType string, body interface{}) (*models.PlotResult, error) {
	op := plotType
	if plotType == "" || strings.ContainsAny(plotType, "/?#") {
		return nil, NewValidationError("plot", "invalid plot type")
	}

	resp, err := c.doRequest(ctx, op, nethttp.MethodPost, PathEDA+plotType+"/", nil, body)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(op, resp); err != nil {
		return nil, err
	}
	data, err := readBody(op, resp)
	if err != nil {
		return nil, err
	}

	var result models.PlotResult
	if err := json.Unmarshal(models.SanitizeNonFinite(data), &result); err != nil {
		return nil, malformed(op, err)
	}
	if result.Empty() {
		return nil, malformed(op, errors.New("response contains no figures"))
	}
	return &result, nil
}

// Transform posts a feature-engineering request and returns the new rows.
func (c *Client) Transform(ctx context.Context, endpoint string, body interface{}) (models.Rows, error) {
	op := "transform"
	if !strings.HasPrefix(endpoint, "/") {
		return nil, NewValidationError(op, "endpoint must be an absolute path")
	}

	resp, err := c.doRequest(ctx, op, nethttp.MethodPost, endpoint, nil, body)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(op, resp); err != nil {
		return nil, err
	}
	data, err := readBody(op, resp)
	if err != nil {
		return nil, err
	}

	rows, err := models.DecodeRows(data)
	if err != nil {
		return nil, malformed(op, err)
	}
	return rows, nil
}

// postAnalysis posts body to p and decodes the JSON response into out.
// Model-driven analyses are expensive and never retried.
func (c *Client) postAnalysis(ctx context.Context, op, p string, body, out interface{}) error {
	resp, err := c.doRequest(http.WithoutRetry(ctx), op, nethttp.MethodPost, p, nil, body)
	if err != nil {
		return err
	}
	if err := checkResponse(op, resp); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			apiErr.Message = firstLines(apiErr.Message, 2)
		}
		return err
	}
	data, err := readBody(op, resp)
	if err != nil {
		return err
	}
	data = models.SanitizeNonFinite(data)

	var envelope models.ErrorResponse
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
		return &Error{Op: op, Kind: KindStatus, StatusCode: resp.StatusCode, Message: firstLines(envelope.Error, 2)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return malformed(op, err)
	}
	return nil
}

// firstLines joins the first n lines of msg. Analysis errors carry server
// tracebacks after the summary.
func firstLines(msg string, n int) string {
	lines := strings.SplitN(msg, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}

// Optimize posts an inverse-design request to /api/optimize/.
func (c *Client) Optimize(ctx context.Context, body interface{}) (*models.OptimizationResult, error) {
	var result models.OptimizationResult
	if err := c.postAnalysis(ctx, "optimize", PathOptimize, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SelectFeatures posts a progressive feature selection request to /api/pfs/.
func (c *Client) SelectFeatures(ctx context.Context, body interface{}) (*models.FeatureSelectionResult, error) {
	var result models.FeatureSelectionResult
	if err := c.postAnalysis(ctx, "feature selection", PathPFS, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
