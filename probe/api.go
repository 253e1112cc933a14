package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxRequestBody bounds POST /v1/detect payloads.
const maxRequestBody = 64 << 10

type detectRequest struct {
	ID       string `json:"id" validate:"omitempty,max=128"`
	URL      string `json:"url" validate:"required,url"`
	Selector string `json:"selector" validate:"required,max=1024"`
	Filter   string `json:"filter" validate:"omitempty,regexp"`
	Timeout  string `json:"timeout" validate:"omitempty,duration"` // Go duration, e.g. "10s"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// validationMessage reports the first failing field.
func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%s: failed %q check", fe.Field(), fe.Tag())
	}
	return err
}

// target validates r and builds a Target. id names the target when the
// request does not.
func (r detectRequest) target(def time.Duration, id string) (Target, error) {
	if err := validate.Struct(r); err != nil {
		return Target{}, validationMessage(err)
	}
	t := Target{
		ID:       r.ID,
		URL:      r.URL,
		Selector: r.Selector,
		Filter:   r.Filter,
		Timeout:  def,
	}
	if t.ID == "" {
		t.ID = id
	}
	if r.Timeout != "" {
		t.Timeout, _ = time.ParseDuration(r.Timeout)
	}
	return t, nil
}

// HandlerOption configures Handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	mcp *mcp.Server
}

// WithMCP serves srv over streamable HTTP at /mcp.
func WithMCP(srv *mcp.Server) HandlerOption {
	return func(c *handlerConfig) { c.mcp = srv }
}

// Handler exposes a Prober over HTTP:
//
//	GET  /healthz
//	POST /v1/detect  {"url", "selector", "filter", "timeout"} -> outcome.Outcome
//	     /mcp        MCP streamable HTTP, with WithMCP
func Handler(p *Prober, opts ...HandlerOption) http.Handler {
	var hc handlerConfig
	for _, o := range opts {
		o(&hc)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if origins := p.cfg.API.CORSOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"active_tabs": p.ActiveTabs(),
			"sinks":       p.sinkR.Len(),
		})
	})

	r.Post("/v1/detect", func(w http.ResponseWriter, r *http.Request) {
		var req detectRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
			return
		}
		t, err := req.target(p.cfg.Detect.Timeout, "api")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		o, err := p.ProbeGuarded(r.Context(), t)
		if errors.Is(err, ErrRejected) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err != nil {
			// the probe ran; only delivery failed
			p.logger.Warn("probe: api emit failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		}
		if errors.Is(r.Context().Err(), context.Canceled) {
			return
		}
		writeJSON(w, http.StatusOK, o)
	})

	if hc.mcp != nil {
		srv := hc.mcp
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
