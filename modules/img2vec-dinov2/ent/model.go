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

package ent

import "fmt"

type Device string

const (
	DeviceGPU     Device = "gpu"
	DeviceCPU     Device = "cpu"
	DeviceUnknown Device = "unknown"
)

// ExecutionContext is detected once when the model is acquired and then
// passed along with it. Callers treat it as opaque.
type ExecutionContext struct {
	Device   Device
	Platform string
	Backend  string

	InputName      string
	InputDatatype  DataType
	OutputName     string
	OutputDatatype DataType
}

// Model is a loaded, ready-to-serve embedding model. It is never mutated
// after acquisition and may be shared by concurrent requests.
type Model struct {
	Name       string
	Version    string
	Dimensions int
	Exec       ExecutionContext
}

func (m *Model) String() string {
	v := m.Version
	if v == "" {
		v = "latest"
	}
	return fmt.Sprintf("%s@%s (%d dims on %s)", m.Name, v, m.Dimensions, m.Exec.Device)
}

// VectorizationResult is the output of one forward pass.
type VectorizationResult struct {
	Vector     []float32
	Dimensions int
}
