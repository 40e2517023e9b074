package onnxsession

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// enableGPU appends a CUDA execution provider if the runtime advertises
// support; it returns an error rather than silently falling back to
// CPU, since a caller that explicitly asked for DeviceGPU should know
// when that request couldn't be honored.
func enableGPU(opts *ort.SessionOptions) error {
	providers, err := ort.GetAvailableProviders()
	if err != nil {
		return fmt.Errorf("query execution providers: %w", err)
	}
	for _, p := range providers {
		if p == "CUDAExecutionProvider" {
			return opts.AppendExecutionProviderCUDA(ort.CUDAProviderOptions{})
		}
	}
	return fmt.Errorf("runtime does not advertise CUDA support")
}
