package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

// pointIDNamespace seeds the deterministic paper-id -> point-id mapping.
// It must never change: the same paper must map to the same point across
// runs, processes, and machines.
var pointIDNamespace = uuid.MustParse("7c9e4b3a-50d2-4f16-9c81-2a4fd0b6e30c")

// PointID derives a stable Qdrant point id from a paper's natural key.
func PointID(paperID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(paperID)).String()
}

// Point is one vector upsert unit.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// ScrollPoint is one enumerated point (payload only, no vector).
type ScrollPoint struct {
	ID      json.RawMessage `json:"id"`
	Payload map[string]any  `json:"payload"`
}

type Client struct {
	log     *logger.Logger
	cfg     config.QdrantConfig
	baseURL string
	http    *http.Client
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

func NewClient(log *logger.Logger, cfg config.QdrantConfig) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("qdrant: logger required")
	}
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.Collection) == "" || cfg.VectorDim <= 0 {
		return nil, opErr("init", OperationErrorValidation, "url, collection, and vector_dim are required", nil)
	}

	c := &Client{
		log:     log.With("client", "Qdrant"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	if err := c.verifyReady(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) CollectionName() string { return c.cfg.Collection }

func (c *Client) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
	PointsCount int64 `json:"points_count"`
}

// EnsureCollection creates the target collection when absent. A collection
// that already exists with a different vector size is a fatal configuration
// error; the caller must not continue the run.
func (c *Client) EnsureCollection(ctx context.Context) error {
	const op = "ensure_collection"

	info, found, err := c.getCollection(ctx, op)
	if err != nil {
		return err
	}
	if found {
		size := info.Config.Params.Vectors.Size
		if size != 0 && size != c.cfg.VectorDim {
			return &OperationError{
				Code:      OperationErrorDimensionMismatch,
				Operation: op,
				Message: fmt.Sprintf(
					"collection %q exists with vector size %d, configured embedding dimension is %d",
					c.cfg.Collection,
					size,
					c.cfg.VectorDim,
				),
			}
		}
		return nil
	}

	c.log.Info("Creating qdrant collection",
		"collection", c.cfg.Collection,
		"vector_dim", c.cfg.VectorDim,
		"distance", c.cfg.Distance,
	)
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.cfg.VectorDim,
			"distance": c.cfg.Distance,
		},
	}
	return c.doJSON(ctx, op, http.MethodPut, c.collectionPath(""), body, nil)
}

func (c *Client) getCollection(ctx context.Context, op string) (*collectionInfo, bool, error) {
	var info collectionInfo
	err := c.doJSON(ctx, op, http.MethodGet, c.collectionPath(""), nil, &info)
	if err == nil {
		return &info, true, nil
	}
	var opErrTyped *OperationError
	if errors.As(err, &opErrTyped) && opErrTyped.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	return nil, false, err
}

// Upsert writes a batch of points in one bulk call.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if strings.TrimSpace(p.ID) == "" {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Vector) != c.cfg.VectorDim {
			return opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", p.ID, c.cfg.VectorDim, len(p.Vector)),
				nil,
			)
		}
	}
	req := map[string]any{"points": points}
	return c.doJSON(ctx, op, http.MethodPut, c.collectionPath("/points?wait=true"), req, nil)
}

// UpsertOne is the per-point fallback used when a bulk write is rejected,
// so one malformed point cannot fail the rest of the batch.
func (c *Client) UpsertOne(ctx context.Context, p Point) error {
	return c.Upsert(ctx, []Point{p})
}

// Scroll enumerates points page by page. Pass nil offset for the first
// page; a nil next offset means the collection is exhausted.
func (c *Client) Scroll(ctx context.Context, offset json.RawMessage, limit int) ([]ScrollPoint, json.RawMessage, error) {
	const op = "scroll"
	if limit <= 0 {
		limit = 1000
	}
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if len(offset) > 0 {
		req["offset"] = offset
	}
	var result struct {
		Points     []ScrollPoint   `json:"points"`
		NextOffset json.RawMessage `json:"next_page_offset"`
	}
	if err := c.doJSON(ctx, op, http.MethodPost, c.collectionPath("/points/scroll"), req, &result); err != nil {
		return nil, nil, err
	}
	next := result.NextOffset
	if string(next) == "null" {
		next = nil
	}
	return result.Points, next, nil
}

// Count returns the exact number of points in the collection.
func (c *Client) Count(ctx context.Context) (int64, error) {
	const op = "count"
	var result struct {
		Count int64 `json:"count"`
	}
	req := map[string]any{"exact": true}
	if err := c.doJSON(ctx, op, http.MethodPost, c.collectionPath("/points/count"), req, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (c *Client) collectionPath(suffix string) string {
	path := "/collections/" + c.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(env.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil {
		return nil
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") || strings.EqualFold(statusString, "acknowledged") || strings.EqualFold(statusString, "completed") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
