package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"exam-portal/internal/logger"
	"exam-portal/internal/models"
)

const (
	getMCQPath    = "/get-mcq"
	submitMCQPath = "/submit-mcq"

	maxErrorBody = 4 << 10
)

// StatusError is returned for any non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) HTTPStatusCode() int { return e.Code }

type Options struct {
	BaseURL            string
	Token              string
	Timeout            time.Duration
	TemplatesFetchPath string
	TemplatesSavePath  string
	HTTPClient         *http.Client
}

// Client talks to the institute's REST backend. It only knows the wire shapes; business
// rules stay on the other side.
type Client struct {
	base          string
	token         string
	http          *http.Client
	templatesGet  string
	templatesSave string
	log           *logger.Logger
}

func NewClient(opts Options, log *logger.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	fetchPath := opts.TemplatesFetchPath
	if fetchPath == "" {
		fetchPath = "/get-course-templates"
	}
	savePath := opts.TemplatesSavePath
	if savePath == "" {
		savePath = "/save-course-templates"
	}
	return &Client{
		base:          strings.TrimRight(opts.BaseURL, "/"),
		token:         opts.Token,
		http:          hc,
		templatesGet:  fetchPath,
		templatesSave: savePath,
		log:           log.With("component", "backend"),
	}
}

func (c *Client) FetchTest(ctx context.Context, path string) (*models.TestBundle, error) {
	q := url.Values{"path": []string{path}}
	var bundle models.TestBundle
	if err := c.do(ctx, http.MethodGet, getMCQPath+"?"+q.Encode(), nil, &bundle); err != nil {
		return nil, errors.Wrapf(err, "fetch test %q", path)
	}
	return &bundle, nil
}

func (c *Client) SubmitAnswers(ctx context.Context, payload models.SubmissionPayload) (*models.SubmissionResult, error) {
	var res models.SubmissionResult
	if err := c.do(ctx, http.MethodPost, submitMCQPath, payload, &res); err != nil {
		return nil, errors.Wrapf(err, "submit test %q", payload.Path)
	}
	return &res, nil
}

func (c *Client) FetchTemplates(ctx context.Context) ([]models.TemplateNode, error) {
	var tree []models.TemplateNode
	if err := c.do(ctx, http.MethodGet, c.templatesGet, nil, &tree); err != nil {
		return nil, errors.Wrap(err, "fetch course templates")
	}
	return tree, nil
}

func (c *Client) SaveTemplates(ctx context.Context, tree []models.TemplateNode) error {
	if tree == nil {
		tree = []models.TemplateNode{}
	}
	if err := c.do(ctx, http.MethodPost, c.templatesSave, tree, nil); err != nil {
		return errors.Wrap(err, "save course templates")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("backend request failed", "method", method, "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
