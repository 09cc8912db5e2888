// Package qualtrics is a thin client over the Qualtrics v3 REST API, it only
// knows how to list surveys, fetch survey definitions and run response
// exports. Reshaping what it returns is the job of the flatten and reconcile
// packages.
package qualtrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"qualflat/internal/components/assert"
	"qualflat/internal/components/chrono"
	"qualflat/internal/components/telemetry"
	"qualflat/lib/restyutil"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

const (
	report_client_list_surveys     = "client.list-surveys"
	report_client_fetch_definition = "client.fetch-definition"
	report_client_request_export   = "client.request-export"
	report_client_export_status    = "client.export-status"
	report_client_download_export  = "client.download-export"
)

const (
	surveysPath     = "surveys"
	definitionsPath = "survey-definitions"
	exportsPath     = "responseexports"
)

var tracer = otel.Tracer("qualflat/internal/qualtrics")

type ClientOptions struct {
	// BaseUrl is the API root, for example https://ca1.qualtrics.com/API/v3/
	BaseUrl string
	Token   string
	// Timeout bounds a single HTTP request, defaults to one minute.
	Timeout time.Duration
	// RequestsPerSecond enables a client side rate limit when positive.
	RequestsPerSecond float64
	// Clock defaults to chrono.StandardImpl.
	Clock chrono.API
	// HttpDump receives every request/response message when set.
	HttpDump restyutil.InstrumentOutput
}

type Client struct {
	http  *resty.Client
	clock chrono.API
	tel   telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	if opts.BaseUrl == "" {
		return nil, fmt.Errorf("qualtrics: a base url was not specified")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("qualtrics: an api token was not specified")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = chrono.NewStandardImpl()
	}

	tel = telemetry.NewScopedAPI("qualtrics", tel)

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeaders(map[string]string{
		"x-api-token":   opts.Token,
		"content-type":  "application/json",
		"cache-control": "no-cache",
	})

	if opts.RequestsPerSecond > 0 {
		// max burst >= 1 just means that no requests will be dropped
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, tracer, opts.HttpDump)

	return &Client{
		http:  httpClient,
		clock: opts.Clock,
		tel:   tel,
	}, nil
}

type apiError struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Meta   struct {
		HttpStatus string    `json:"httpStatus"`
		Error      *apiError `json:"error"`
	} `json:"meta"`
}

func (e envelope) errorMessage() string {
	if e.Meta.Error == nil {
		return ""
	}
	return e.Meta.Error.ErrorMessage
}

func (e envelope) hasResult() bool {
	return len(e.Result) > 0 && string(e.Result) != "null"
}

// send executes a request and decodes the standard response envelope, any
// network failure or non-2xx status becomes a *TransportError.
func (c *Client) send(ctx context.Context, op, method, url string, body any) (envelope, int, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	res, err := req.Execute(method, url)
	if err != nil {
		// the resty hooks already reported the failure
		return envelope{}, 0, &TransportError{Op: op, URL: url, Err: err}
	}

	var env envelope
	// error responses do not always carry a json body, so a decode failure
	// is only fatal on success statuses
	decodeErr := json.Unmarshal(res.Body(), &env)

	if res.IsError() {
		err := &TransportError{
			Op:         op,
			URL:        url,
			StatusCode: res.StatusCode(),
			Message:    env.errorMessage(),
		}
		if res.StatusCode() != http.StatusNotFound {
			c.tel.ReportBroken(op, err)
		}
		return env, res.StatusCode(), err
	}
	if decodeErr != nil {
		err := &TransportError{
			Op:         op,
			URL:        url,
			StatusCode: res.StatusCode(),
			Err:        fmt.Errorf("decode response: %w", decodeErr),
		}
		c.tel.ReportBroken(op, err)
		return envelope{}, res.StatusCode(), err
	}
	return env, res.StatusCode(), nil
}
