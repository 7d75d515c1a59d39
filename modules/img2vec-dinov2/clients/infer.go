//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package clients

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/weaviate/img2address/modules/img2vec-dinov2/ent"
)

const (
	headerInferenceHeaderLength = "Inference-Header-Content-Length"
	paramBinaryDataSize         = "binary_data_size"
	paramBinaryData             = "binary_data"
)

type inferRequest struct {
	ID      string                 `json:"id,omitempty"`
	Inputs  []inferInputTensor     `json:"inputs"`
	Outputs []inferRequestedOutput `json:"outputs,omitempty"`
}

type inferInputTensor struct {
	Name       string         `json:"name"`
	Shape      []int64        `json:"shape"`
	Datatype   ent.DataType   `json:"datatype"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Data       []float32      `json:"data,omitempty"`
}

type inferRequestedOutput struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type inferResponse struct {
	ModelName    string              `json:"model_name"`
	ModelVersion string              `json:"model_version"`
	ID           string              `json:"id"`
	Outputs      []inferOutputTensor `json:"outputs"`
	Error        string              `json:"error"`
}

type inferOutputTensor struct {
	Name       string            `json:"name"`
	Shape      []int64           `json:"shape"`
	Datatype   ent.DataType      `json:"datatype"`
	Parameters map[string]any    `json:"parameters"`
	Data       []json.RawMessage `json:"data"`
}

// Infer runs one forward pass of the model over tensor and returns the
// requested output. requestID is echoed by the server and only used for
// correlation.
func (c *KServeClient) Infer(ctx context.Context, requestID string,
	exec ent.ExecutionContext, tensor *ent.Tensor, binaryData bool,
) (*ent.VectorizationResult, error) {
	input := inferInputTensor{
		Name:     exec.InputName,
		Shape:    tensor.Shape,
		Datatype: ent.DataTypeFP32,
	}
	output := inferRequestedOutput{
		Name:       exec.OutputName,
		Parameters: map[string]any{paramBinaryData: false},
	}

	var body []byte
	var headerLen int
	if binaryData {
		raw := encodeFP32(tensor.Data)
		input.Parameters = map[string]any{paramBinaryDataSize: len(raw)}
		header, err := json.Marshal(inferRequest{ID: requestID, Inputs: []inferInputTensor{input}, Outputs: []inferRequestedOutput{output}})
		if err != nil {
			return nil, errors.Wrap(err, "marshal inference header")
		}
		headerLen = len(header)
		body = append(header, raw...)
	} else {
		input.Data = tensor.Data
		var err error
		body, err = json.Marshal(inferRequest{ID: requestID, Inputs: []inferInputTensor{input}, Outputs: []inferRequestedOutput{output}})
		if err != nil {
			return nil, errors.Wrap(err, "marshal body")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.modelPath("/infer")),
		bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create POST request")
	}
	if binaryData {
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set(headerInferenceHeaderLength, strconv.Itoa(headerLen))
	} else {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send POST request")
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	if res.StatusCode > 299 {
		return nil, statusError(res.StatusCode, bodyBytes)
	}

	jsonPart, binaryPart, err := splitInferenceBody(bodyBytes, res.Header.Get(headerInferenceHeaderLength))
	if err != nil {
		return nil, err
	}

	var resBody inferResponse
	if err := json.Unmarshal(jsonPart, &resBody); err != nil {
		return nil, errors.Wrapf(err, "unmarshal response body. Got: %s", truncate(jsonPart))
	}
	if resBody.Error != "" {
		return nil, errors.Errorf("inference failed: %s", resBody.Error)
	}

	return decodeEmbedding(resBody, exec.OutputName, binaryPart)
}

func splitInferenceBody(body []byte, headerLen string) ([]byte, []byte, error) {
	if headerLen == "" {
		return body, nil, nil
	}
	n, err := strconv.Atoi(headerLen)
	if err != nil || n < 0 || n > len(body) {
		return nil, nil, errors.Errorf("invalid %s header %q", headerInferenceHeaderLength, headerLen)
	}
	return body[:n], body[n:], nil
}

func decodeEmbedding(res inferResponse, outputName string, binaryPart []byte) (*ent.VectorizationResult, error) {
	offset := 0
	for _, out := range res.Outputs {
		size := binarySize(out.Parameters)
		if out.Name != outputName && outputName != "" {
			offset += size
			continue
		}

		if out.Datatype != ent.DataTypeFP32 {
			return nil, errors.Errorf("output %q has datatype %s, expected %s", out.Name, out.Datatype, ent.DataTypeFP32)
		}
		dims, ok := EmbeddingShape(out.Shape)
		if !ok {
			return nil, errors.Errorf("output %q has shape %v, expected [1, dims]", out.Name, out.Shape)
		}

		var vector []float32
		var err error
		if size > 0 {
			if offset+size > len(binaryPart) {
				return nil, errors.Errorf("output %q: binary data truncated", out.Name)
			}
			vector, err = decodeFP32(binaryPart[offset : offset+size])
		} else {
			vector, err = decodeJSONFP32(out.Data)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "decode output %q", out.Name)
		}
		if len(vector) != dims {
			return nil, errors.Errorf("output %q has %d values for shape %v", out.Name, len(vector), out.Shape)
		}

		return &ent.VectorizationResult{
			Vector:     vector,
			Dimensions: dims,
		}, nil
	}

	return nil, errors.Errorf("output %q missing from inference response", outputName)
}

func binarySize(params map[string]any) int {
	if params == nil {
		return 0
	}
	if v, ok := params[paramBinaryDataSize].(float64); ok && v > 0 {
		return int(v)
	}
	return 0
}

func decodeJSONFP32(data []json.RawMessage) ([]float32, error) {
	vector := make([]float32, len(data))
	for i, raw := range data {
		f, err := strconv.ParseFloat(string(raw), 32)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d", i)
		}
		vector[i] = float32(f)
	}
	return vector, nil
}

func encodeFP32(data []float32) []byte {
	out := make([]byte, 4*len(data))
	for i, f := range data {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func decodeFP32(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, errors.Errorf("binary FP32 data of %d bytes is not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
