package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cast"

	"github.com/ubermorgenland/yas-mcp/pkg/auth"
	"github.com/ubermorgenland/yas-mcp/pkg/memory"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

// maxResponseBytes caps how much of a backend reply is kept
const maxResponseBytes = 32 << 20

const (
	contentTypeJSON      = "application/json"
	contentTypeForm      = "application/x-www-form-urlencoded"
	contentTypeMultipart = "multipart/form-data"
)

var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// Requester builds executors bound to one backend endpoint
type Requester struct {
	endpoint server.EndpointConfig
	client   *http.Client
	logger   *log.Logger
}

// NewRequester creates a Requester whose client authenticates with the
// endpoint credentials and times out after timeout
func NewRequester(endpoint server.EndpointConfig, timeout time.Duration, logger *log.Logger) (*Requester, error) {
	provider, err := auth.NewSecureAuthProvider(endpoint)
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: auth.NewSecureRoundTripper(http.DefaultTransport, provider),
	}
	return NewRequesterWithClient(endpoint, client, logger), nil
}

// NewRequesterWithClient uses client as is
func NewRequesterWithClient(endpoint server.EndpointConfig, client *http.Client, logger *log.Logger) *Requester {
	if endpoint.BaseURL == "" {
		logger.Warn().Msg("endpoint base_url is empty, backend calls will fail")
	}
	return &Requester{endpoint: endpoint, client: client, logger: logger}
}

// BuildRouteExecutor compiles route into an Executor
func (r *Requester) BuildRouteExecutor(route RouteConfig) (Executor, error) {
	method := strings.ToUpper(route.Method)
	if !supportedMethods[method] {
		return nil, server.NewError(server.ErrorTypeWiring,
			fmt.Sprintf("unsupported HTTP method %s", route.Method), route.Path)
	}

	headers := make(map[string]string, len(route.Headers)+len(r.endpoint.Headers))
	seen := make(map[string]bool)
	for k, v := range route.Headers {
		headers[k] = v
		seen[http.CanonicalHeaderKey(k)] = true
	}
	for k, v := range r.endpoint.Headers {
		if !seen[http.CanonicalHeaderKey(k)] {
			headers[k] = v
		}
	}

	contentType := contentTypeJSON
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			contentType = v
		}
	}

	return &routeExecutor{
		method:       method,
		path:         route.Path,
		baseURL:      strings.TrimRight(r.endpoint.BaseURL, "/"),
		headers:      headers,
		headerParams: route.MethodConfig.HeaderParams,
		queryParams:  route.MethodConfig.QueryParams,
		bodyField:    route.MethodConfig.BodyField,
		fileUpload:   route.MethodConfig.FileUpload,
		contentType:  contentType,
		client:       r.client,
		logger:       r.logger,
	}, nil
}

// routeExecutor captures the immutable plan of one route
type routeExecutor struct {
	method       string
	path         string
	baseURL      string
	headers      map[string]string
	headerParams []string
	queryParams  []string
	bodyField    string
	fileUpload   *FileUploadConfig
	contentType  string
	client       *http.Client
	logger       *log.Logger
}

// Invoke partitions args into path, header, query and body and calls the backend
func (e *routeExecutor) Invoke(ctx context.Context, args json.RawMessage) (*HttpResponse, error) {
	params, err := decodeArgs(args)
	if err != nil {
		return nil, err
	}

	path := e.substitutePath(params)

	query := &orderedQuery{values: url.Values{}}
	reqHeaders := http.Header{}
	for k, v := range e.headers {
		reqHeaders.Set(k, v)
	}

	for _, name := range e.headerParams {
		v, ok := params[name]
		if !ok {
			continue
		}
		delete(params, name)
		if v == nil {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, server.NewError(server.ErrorTypeValidation,
				fmt.Sprintf("header parameter %s must be a scalar", name), err.Error())
		}
		reqHeaders.Set(name, s)
	}

	for _, name := range e.queryParams {
		v, ok := params[name]
		if !ok {
			continue
		}
		delete(params, name)
		if err := addQuery(query, name, v); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if len(params) > 0 {
		if e.method == http.MethodGet {
			for _, name := range sortedKeys(params) {
				if err := addQuery(query, name, params[name]); err != nil {
					return nil, err
				}
			}
		} else {
			var ct string
			body, ct, err = e.encodeBody(params)
			if err != nil {
				return nil, err
			}
			reqHeaders.Set("Content-Type", ct)
		}
	}

	target := e.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + encoded
	}

	req, err := http.NewRequestWithContext(ctx, e.method, target, body)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeValidation, "failed to build request")
	}
	req.Header = reqHeaders

	e.logger.Info().Str("method", e.method).Str("url", target).Msg("executing request")
	start := time.Now()

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeNetwork,
			fmt.Sprintf("request %s %s failed", e.method, e.path))
	}
	defer resp.Body.Close()

	data, err := memory.Default.ReadAll(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeNetwork, "failed to read response body")
	}

	e.logger.Debug().
		Str("method", e.method).
		Str("path", e.path).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	headers := make(map[string]string, len(resp.Header))
	for k, vs := range resp.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}
	return &HttpResponse{StatusCode: resp.StatusCode, Body: data, Headers: headers}, nil
}

// decodeArgs parses the argument object; empty input and null mean {}
func decodeArgs(args json.RawMessage) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]interface{}{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var params map[string]interface{}
	if err := dec.Decode(&params); err != nil {
		return nil, server.Wrap(err, server.ErrorTypeValidation, "arguments must be a JSON object")
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return params, nil
}

// substitutePath fills {name} placeholders from scalar arguments and removes them
func (e *routeExecutor) substitutePath(params map[string]interface{}) string {
	path := e.path
	if !strings.Contains(path, "{") {
		return path
	}
	for _, key := range sortedKeys(params) {
		placeholder := "{" + key + "}"
		if !strings.Contains(path, placeholder) {
			continue
		}
		s, err := cast.ToStringE(params[key])
		if err != nil || params[key] == nil {
			continue
		}
		path = strings.ReplaceAll(path, placeholder, url.PathEscape(s))
		delete(params, key)
	}
	return path
}

// formFields flattens the body argument into the other remaining keys.
// Fields of the body object win over top-level keys of the same name.
func (e *routeExecutor) formFields(params map[string]interface{}) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(params))
	for k, v := range params {
		if k != e.bodyField {
			fields[k] = v
		}
	}
	if e.bodyField == "" {
		return fields, nil
	}
	v, ok := params[e.bodyField]
	if !ok || v == nil {
		return fields, nil
	}
	obj, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeValidation,
			fmt.Sprintf("%s must be an object for form encoded requests", e.bodyField))
	}
	for k, fv := range obj {
		fields[k] = fv
	}
	return fields, nil
}

// encodeBody serializes the remaining arguments. JSON bodies carry the map
// as is; form and multipart bodies carry its flattened fields.
func (e *routeExecutor) encodeBody(params map[string]interface{}) (io.Reader, string, error) {
	switch {
	case strings.HasPrefix(e.contentType, contentTypeForm):
		fields, err := e.formFields(params)
		if err != nil {
			return nil, "", err
		}
		values := url.Values{}
		for _, k := range sortedKeys(fields) {
			if err := addQuery(values, k, fields[k]); err != nil {
				return nil, "", err
			}
		}
		return strings.NewReader(values.Encode()), contentTypeForm, nil

	case strings.HasPrefix(e.contentType, contentTypeMultipart):
		return e.encodeMultipart(params)

	default:
		data, err := json.Marshal(params)
		if err != nil {
			return nil, "", server.Wrap(err, server.ErrorTypeValidation, "failed to encode request body")
		}
		return bytes.NewReader(data), e.contentType, nil
	}
}

func (e *routeExecutor) encodeMultipart(params map[string]interface{}) (io.Reader, string, error) {
	fields, err := e.formFields(params)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range sortedKeys(fields) {
		s, err := cast.ToStringE(fields[k])
		if err != nil {
			return nil, "", server.NewError(server.ErrorTypeValidation,
				fmt.Sprintf("multipart field %s must be a scalar", k), err.Error())
		}
		if e.fileUpload != nil && k == e.fileUpload.FieldName {
			if e.fileUpload.MaxSize > 0 && int64(len(s)) > e.fileUpload.MaxSize {
				return nil, "", server.NewError(server.ErrorTypeValidation,
					fmt.Sprintf("file %s exceeds %d bytes", k, e.fileUpload.MaxSize), "")
			}
			part, err := w.CreateFormFile(k, k)
			if err != nil {
				return nil, "", server.Wrap(err, server.ErrorTypeInternal, "failed to create file part")
			}
			if _, err := io.WriteString(part, s); err != nil {
				return nil, "", server.Wrap(err, server.ErrorTypeInternal, "failed to write file part")
			}
			continue
		}
		if err := w.WriteField(k, s); err != nil {
			return nil, "", server.Wrap(err, server.ErrorTypeInternal, "failed to write form field")
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", server.Wrap(err, server.ErrorTypeInternal, "failed to finish multipart body")
	}
	return &buf, w.FormDataContentType(), nil
}

// valueAdder is satisfied by url.Values and orderedQuery
type valueAdder interface {
	Add(key, value string)
}

// orderedQuery encodes pairs in the order their keys were first added
type orderedQuery struct {
	keys   []string
	values url.Values
}

func (q *orderedQuery) Add(key, value string) {
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values.Add(key, value)
}

func (q *orderedQuery) Encode() string {
	var b strings.Builder
	for _, k := range q.keys {
		for _, v := range q.values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// addQuery appends v under name; arrays become repeated keys and nil is skipped
func addQuery(values valueAdder, name string, v interface{}) error {
	if v == nil {
		return nil
	}
	if items, ok := v.([]interface{}); ok {
		for _, item := range items {
			if err := addQuery(values, name, item); err != nil {
				return err
			}
		}
		return nil
	}
	if obj, ok := v.(map[string]interface{}); ok {
		data, err := json.Marshal(obj)
		if err != nil {
			return server.Wrap(err, server.ErrorTypeValidation, fmt.Sprintf("query parameter %s is not encodable", name))
		}
		values.Add(name, string(data))
		return nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return server.NewError(server.ErrorTypeValidation,
			fmt.Sprintf("query parameter %s must be a scalar", name), err.Error())
	}
	values.Add(name, s)
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
