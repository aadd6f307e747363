package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-allocator/internal/events"
	"wisefido-allocator/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// resultSuccess 后端 Result 包装中的成功码
const resultSuccess = 2000

// apiResult 后端统一响应包装 {code, type, message, result}
type apiResult struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// statusUpdate 资源状态回写请求
type statusUpdate struct {
	Status     models.ResourceStatus `json:"status"`
	AssignedTo string                `json:"assigned_to,omitempty"`
	EventID    string                `json:"event_id,omitempty"`
}

// BackendClient 急诊 CRUD 后端客户端：拉取患者和资源，回写分配结果
type BackendClient struct {
	httpClient *resty.Client
	tenantID   string
	logger     *zap.Logger
}

// NewBackendClient 创建后端客户端
func NewBackendClient(baseURL string, timeout time.Duration, tenantID string, logger *zap.Logger) *BackendClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if tenantID != "" {
		client.SetHeader("X-Tenant-Id", tenantID)
	}

	return &BackendClient{
		httpClient: client,
		tenantID:   tenantID,
		logger:     logger,
	}
}

// FetchPatients 拉取在院患者
func (c *BackendClient) FetchPatients(ctx context.Context) ([]models.Patient, error) {
	var patients []models.Patient
	if err := c.get(ctx, "/api/v1/ed/patients", &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

// FetchResources 拉取全部资源
func (c *BackendClient) FetchResources(ctx context.Context) ([]models.Resource, error) {
	var resources []models.Resource
	if err := c.get(ctx, "/api/v1/ed/resources", &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// UpdateResourceStatus 回写资源状态
func (c *BackendClient) UpdateResourceStatus(ctx context.Context, resourceID string, status models.ResourceStatus, patientID, eventID string) error {
	var response apiResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", resourceID).
		SetBody(statusUpdate{Status: status, AssignedTo: patientID, EventID: eventID}).
		SetResult(&response).
		SetError(&response).
		Put("/api/v1/ed/resources/{id}/status")
	if err != nil {
		c.logger.Error("Backend API call failed",
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call backend API: %w", err)
	}
	if err := checkResult(resp, &response); err != nil {
		return err
	}

	c.logger.Debug("Resource status written back",
		zap.String("resource_id", resourceID),
		zap.String("status", string(status)),
	)
	return nil
}

// Name 实现 events.Sink
func (c *BackendClient) Name() string { return "backend" }

// Handle 把分配事件回写到后端
func (c *BackendClient) Handle(ctx context.Context, ev events.Event) error {
	if ev.Assignment == nil {
		return nil
	}
	a := ev.Assignment
	patientID := ""
	if a.Status == models.StatusInUse {
		patientID = a.PatientID
	}
	return c.UpdateResourceStatus(ctx, a.ResourceID, a.Status, patientID, a.EventID)
}

func (c *BackendClient) get(ctx context.Context, path string, out interface{}) error {
	var response apiResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&response).
		SetError(&response).
		Get(path)
	if err != nil {
		c.logger.Error("Backend API call failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call backend API: %w", err)
	}
	if err := checkResult(resp, &response); err != nil {
		return err
	}

	if err := json.Unmarshal(response.Result, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}

	c.logger.Debug("Backend API call succeeded",
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}

func checkResult(resp *resty.Response, response *apiResult) error {
	if resp.IsError() && response.Code == 0 {
		return fmt.Errorf("backend API error: HTTP %d", resp.StatusCode())
	}
	if response.Code != resultSuccess {
		return fmt.Errorf("backend API error: %s (code: %d)", response.Message, response.Code)
	}
	return nil
}
