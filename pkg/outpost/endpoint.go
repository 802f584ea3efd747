package outpost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/outpost-run/outpost-go/pkg/client"
)

// Domain is a public domain of an endpoint.
type Domain struct {
	ID       string `json:"id"`
	Protocol string `json:"protocol"`
	Name     string `json:"name"`
}

// URL returns the base URL of the domain.
func (d Domain) URL() string {
	return d.Protocol + "://" + d.Name
}

// HardwareInstance is the machine type an endpoint runs on.
type HardwareInstance struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReplicaScaling bounds the number of replicas of an endpoint.
type ReplicaScaling struct {
	Min                   int `json:"min"`
	Max                   int `json:"max"`
	ScaledownPeriod       int `json:"scaledownPeriod"`
	TargetPendingRequests int `json:"targetPendingRequests"`
}

// Deployment is one deployment of an endpoint.
type Deployment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
	ConcludedAt string `json:"concludedAt,omitempty"`
	TimeTakenS  *int   `json:"timeTakenS,omitempty"`
	Creator     *User  `json:"creator,omitempty"`
}

// EndpointResource is an inference endpoint service.
type EndpointResource struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	FullName             string            `json:"fullName"`
	Visibility           string            `json:"visibility"`
	OwnerID              string            `json:"ownerId"`
	ContainerType        string            `json:"containerType"`
	TemplateType         string            `json:"templateType"`
	TaskType             string            `json:"taskType"`
	Config               map[string]any    `json:"config,omitempty"`
	PredictionPath       string            `json:"predictionPath"`
	HealthcheckPath      string            `json:"healthcheckPath"`
	PrimaryDomain        *Domain           `json:"primaryDomain,omitempty"`
	Status               string            `json:"status"`
	Port                 int               `json:"port"`
	HardwareInstance     *HardwareInstance `json:"hardwareInstance,omitempty"`
	ReplicaScalingConfig *ReplicaScaling   `json:"replicaScalingConfig,omitempty"`
	CurrentDeploymentID  string            `json:"currentDeploymentId,omitempty"`
	CurrentDeployment    *Deployment       `json:"currentDeployment,omitempty"`
	CreatedAt            string            `json:"createdAt"`
	UpdatedAt            string            `json:"updatedAt"`
}

// EndpointList is a page of endpoints.
type EndpointList struct {
	Total     int                `json:"total"`
	Endpoints []EndpointResource `json:"endpoints"`
}

// DeploymentList is a page of deployments.
type DeploymentList struct {
	Total       int          `json:"total"`
	Deployments []Deployment `json:"deployments"`
}

// LogKind selects which logs of a deployment to read.
type LogKind string

// Log kinds.
const (
	LogsDeployment LogKind = "dep"
	LogsRuntime    LogKind = "runtime"
	LogsEvents     LogKind = "events"
)

// LogLine is one log entry.
type LogLine struct {
	Time    string `json:"time"`
	Message string `json:"message"`
}

// Endpoints is the namespace of the endpoints owned by an entity.
type Endpoints struct {
	c      *client.Client
	entity string
}

// NewEndpoints returns the endpoints namespace of entity.
func NewEndpoints(c *client.Client, entity string) *Endpoints {
	return &Endpoints{c: c, entity: entity}
}

// List lists the endpoints of the entity.
func (e *Endpoints) List(ctx context.Context) (*EndpointList, error) {
	var l EndpointList
	if err := e.c.DoJSON(ctx, http.MethodGet, joinPath("endpoints", e.entity), nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Create creates an endpoint from spec and returns its namespace. Create
// is a POST and is never retried.
func (e *Endpoints) Create(ctx context.Context, spec any) (*Endpoint, error) {
	var res struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := e.c.DoJSON(ctx, http.MethodPost, joinPath("endpoints", e.entity), &client.RequestOptions{JSON: spec}, &res); err != nil {
		return nil, err
	}
	if res.Name == "" {
		return nil, errors.New("create endpoint: response has no name")
	}
	return NewEndpoint(e.c, e.entity, res.Name), nil
}

// Endpoint is the namespace of a single endpoint.
type Endpoint struct {
	c      *client.Client
	entity string
	name   string
}

// NewEndpoint returns the namespace of the endpoint entity/name.
func NewEndpoint(c *client.Client, entity, name string) *Endpoint {
	return &Endpoint{c: c, entity: entity, name: name}
}

// FullName returns "entity/name".
func (e *Endpoint) FullName() string {
	return e.entity + "/" + e.name
}

func (e *Endpoint) path(elem ...string) string {
	return joinPath(append([]string{"endpoints", e.entity, e.name}, elem...)...)
}

// Get returns the endpoint details.
func (e *Endpoint) Get(ctx context.Context) (*EndpointResource, error) {
	var r EndpointResource
	if err := e.c.DoJSON(ctx, http.MethodGet, e.path(), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Deploy starts a new deployment and returns its id. A nil spec sends an
// empty object.
func (e *Endpoint) Deploy(ctx context.Context, spec any) (string, error) {
	if spec == nil {
		spec = map[string]any{}
	}
	var res struct {
		ID any `json:"id"`
	}
	if err := e.c.DoJSON(ctx, http.MethodPost, e.path("deployments"), &client.RequestOptions{JSON: spec}, &res); err != nil {
		return "", err
	}
	switch id := res.ID.(type) {
	case nil:
		return "", nil
	case string:
		return id, nil
	case float64:
		return fmt.Sprintf("%.0f", id), nil
	default:
		return fmt.Sprint(id), nil
	}
}

// ListDeploymentsOptions filters ListDeployments.
type ListDeploymentsOptions struct {
	Skip int `url:"skip,omitempty"`
	Take int `url:"take,omitempty"`
}

// ListDeployments lists the deployments of the endpoint.
func (e *Endpoint) ListDeployments(ctx context.Context, opts *ListDeploymentsOptions) (*DeploymentList, error) {
	ro := &client.RequestOptions{}
	if opts != nil {
		ro.Query = opts
	}
	var l DeploymentList
	if err := e.c.DoJSON(ctx, http.MethodGet, e.path("deployments"), ro, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Update replaces the endpoint configuration with spec.
func (e *Endpoint) Update(ctx context.Context, spec any) error {
	if spec == nil {
		spec = map[string]any{}
	}
	return e.c.DoJSON(ctx, http.MethodPut, e.path(), &client.RequestOptions{JSON: spec}, nil)
}

// UpdateName renames the endpoint. The namespace follows the new name.
func (e *Endpoint) UpdateName(ctx context.Context, name string) error {
	body := map[string]string{"name": name}
	if err := e.c.DoJSON(ctx, http.MethodPut, e.path("name"), &client.RequestOptions{JSON: body}, nil); err != nil {
		return err
	}
	e.name = name
	return nil
}

// Delete deletes the endpoint.
func (e *Endpoint) Delete(ctx context.Context) error {
	return e.c.DoJSON(ctx, http.MethodDelete, e.path(), nil, nil)
}

// Status returns the current deployment status of the endpoint.
func (e *Endpoint) Status(ctx context.Context) (map[string]any, error) {
	var s map[string]any
	if err := e.c.DoJSON(ctx, http.MethodGet, e.path("status"), nil, &s); err != nil {
		return nil, err
	}
	return s, nil
}

type logsQuery struct {
	Sequence *int `url:"sequence,omitempty"`
}

// Logs returns the logs of a deployment. A nil sequence reads from the
// start.
func (e *Endpoint) Logs(ctx context.Context, deploymentID string, kind LogKind, sequence *int) ([]LogLine, error) {
	if kind == "" {
		kind = LogsRuntime
	}
	var lines []LogLine
	ro := &client.RequestOptions{Query: logsQuery{Sequence: sequence}}
	if err := e.c.DoJSON(ctx, http.MethodGet, e.path("deployments", deploymentID, "logs", string(kind)), ro, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// DownloadTemplate writes the custom template file of the endpoint to w.
func (e *Endpoint) DownloadTemplate(ctx context.Context, w io.Writer) error {
	resp, err := e.c.Request(ctx, http.MethodGet, e.path("custom-template-file"), &client.RequestOptions{Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint: errcheck

	_, err = io.Copy(w, resp.Body)
	return err
}

// Predictor returns a prediction client for the endpoint. It fails with
// ErrNoPrimaryDomain when the endpoint has no domain yet.
func (e *Endpoint) Predictor(ctx context.Context) (*Predictor, error) {
	r, err := e.Get(ctx)
	if err != nil {
		return nil, err
	}
	if r.PrimaryDomain == nil {
		return nil, fmt.Errorf("%s: %w", e.FullName(), ErrNoPrimaryDomain)
	}
	return NewPredictor(e.c, r.PrimaryDomain.URL(), r.PredictionPath, r.HealthcheckPath), nil
}
