package estd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tacrodose/pkengine/pkg/config"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote EstimationService
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Estimate submits a case and decodes the stored estimate into out
func (c *Client) Estimate(ctx context.Context, id string, cs *config.Case, out any) error {
	raw, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}
	return c.call(ctx, methodEstimate, EstimateRequest{EstimateID: id, Case: raw}, out)
}

// GetEstimate fetches a stored estimate into out
func (c *Client) GetEstimate(ctx context.Context, id string, out any) error {
	return c.call(ctx, methodGetEstimate, map[string]string{"estimate_id": id}, out)
}

// Predict evaluates explicit dosing events remotely
func (c *Client) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	var resp PredictResponse
	if err := c.call(ctx, methodPredict, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req := &structpb.Struct{}
	if err := protojson.Unmarshal(data, req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	body, err := protojson.Marshal(resp)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
