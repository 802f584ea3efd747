package outpost

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/outpost-run/outpost-go/pkg/client"
)

const defaultPollInterval = 500 * time.Millisecond

// Predictor sends inference requests to a deployed endpoint.
type Predictor struct {
	c               *client.Client
	baseURL         string
	predictionPath  string
	healthcheckPath string
}

// NewPredictor returns a predictor for the endpoint served at baseURL.
func NewPredictor(c *client.Client, baseURL, predictionPath, healthcheckPath string) *Predictor {
	return &Predictor{
		c:               c,
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		predictionPath:  normalizePath(predictionPath),
		healthcheckPath: normalizePath(healthcheckPath),
	}
}

// PredictionURL returns the URL predictions are posted to.
func (p *Predictor) PredictionURL() string {
	return p.baseURL + p.predictionPath
}

// HealthcheckURL returns the URL of the health check.
func (p *Predictor) HealthcheckURL() string {
	return p.baseURL + p.healthcheckPath
}

// Infer posts a prediction request. Failures are returned as
// *client.PredictionError.
func (p *Predictor) Infer(ctx context.Context, opts *client.RequestOptions) (*http.Response, error) {
	var o client.RequestOptions
	if opts != nil {
		o = *opts
	}
	o.Check = client.CheckPredictionResponse
	return p.c.Request(ctx, http.MethodPost, p.PredictionURL(), &o)
}

// Wake sends a GET to the prediction path so that a scaled down endpoint
// starts. The response is returned whatever its status.
func (p *Predictor) Wake(ctx context.Context) (*http.Response, error) {
	return p.c.Request(ctx, http.MethodGet, p.PredictionURL(), &client.RequestOptions{Check: acceptAll})
}

// Healthcheck calls the health check. The response is returned whatever
// its status.
func (p *Predictor) Healthcheck(ctx context.Context) (*http.Response, error) {
	return p.c.Request(ctx, http.MethodGet, p.HealthcheckURL(), &client.RequestOptions{Check: acceptAll})
}

// WaitHealthy calls the health check every poll interval of the client
// until it answers with a 2xx status or ctx is done.
func (p *Predictor) WaitHealthy(ctx context.Context) error {
	interval := p.c.PollInterval()
	if interval <= 0 {
		interval = defaultPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		resp, err := p.Healthcheck(ctx)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode/100 == 2 {
				return nil
			}
			p.c.Logger().Debug("endpoint not healthy yet", "status", resp.StatusCode)
		} else if ctx.Err() == nil {
			p.c.Logger().Debug("health check failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func acceptAll(*http.Response) error {
	return nil
}

func normalizePath(p string) string {
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
