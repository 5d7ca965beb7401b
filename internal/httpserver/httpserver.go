// Package httpserver exposes kernel.Kernel over HTTP: POST / maps a web
// request into a Web/request invocation, a mapping step typically
// performed by user-provided Web/request => ... syncs, drains the flow,
// and renders whatever a terminal Web/respond invocation carries. That
// entry-request mapping is the only thing served: there are no
// invoke/query/health endpoints of the transport wire, so this binary
// cannot act as a remote transport for another kernel process.
package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conceptkit/ckit/internal/actionlog"
	eventbus "github.com/conceptkit/ckit/internal/eventbus"
	events "github.com/conceptkit/ckit/internal/events"
	"github.com/conceptkit/ckit/internal/kernel"
	"github.com/conceptkit/ckit/internal/reqid"
)

// Options configures the handler.
type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	Timeout time.Duration

	// Pretty enables indented JSON responses.
	Pretty bool

	// MaxBodyBytes limits the request body size. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. Disabled when AllowedOrigins is empty.
	CORS CORSOptions
}

type CORSOptions struct {
	AllowedOrigins []string
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// Handler serves the kernel's entry concept over HTTP.
type Handler struct {
	kernel       *kernel.Kernel
	entryConcept string
	entryAction  string
	opt          Options
}

// New builds a Handler that maps every request into entryConcept/entryAction,
// e.g. "Web"/"request".
func New(k *kernel.Kernel, entryConcept, entryAction string, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{kernel: k, entryConcept: entryConcept, entryAction: entryAction, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	ctx, _ = reqid.NewContext(ctx)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}
	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	input, berr := parseRequestInput(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, map[string]any{"error": berr.Error()}, h.opt.Pretty)
		return
	}

	result, err := h.kernel.HandleRequest(ctx, h.entryConcept, h.entryAction, input, extractRespondBody)
	if err != nil {
		status = http.StatusInternalServerError
		writeJSON(w, status, map[string]any{"error": err.Error()}, h.opt.Pretty)
		return
	}

	resp := map[string]any{"flowId": result.FlowID}
	switch {
	case result.Error != "":
		status = statusFromCode(result.Code)
		resp["error"] = result.Error
		resp["code"] = result.Code
	case result.Body != nil:
		resp["body"] = result.Body
	}
	writeJSON(w, status, resp, h.opt.Pretty)
}

func statusFromCode(code int) int {
	if code >= 100 && code < 600 {
		return code
	}
	return http.StatusInternalServerError
}

// extractRespondBody implements the default response mapping: a terminal
// Web/respond invocation's input fields become the body, a
// Web/respondError invocation's fields become error/code, and no match
// at all yields {flowId} only.
func extractRespondBody(records []actionlog.Record) kernel.RequestResult {
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Type != actionlog.TypeInvocation || r.Concept != "Web" {
			continue
		}
		switch r.Action {
		case "respond":
			return kernel.RequestResult{Body: r.Input}
		case "respondError":
			msg, _ := r.Input["message"].(string)
			code, _ := r.Input["code"].(int)
			return kernel.RequestResult{Error: msg, Code: code}
		}
	}
	return kernel.RequestResult{}
}

func parseRequestInput(r *http.Request, maxBody int64) (map[string]any, error) {
	input := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"query":  r.URL.Query().Encode(),
	}
	headers := map[string]any{}
	for k, v := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ",")
	}
	input["headers"] = headers

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return input, nil
	}

	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, errBodyTooLarge
	}
	if len(body) == 0 {
		return input, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		input["rawBody"] = string(body)
		return input, nil
	}
	for k, v := range decoded {
		input[k] = v
	}
	return input, nil
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var errBodyTooLarge = &bodyTooLargeError{}

type bodyTooLargeError struct{}

func (*bodyTooLargeError) Error() string { return "body too large" }
