package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Function instances have a read-only home directory.
	api.DisableConfigDir()
}

// Info describes a rendered document after post-processing.
type Info struct {
	Pages         int
	OriginalSize  int
	OptimizedSize int
}

// Inspect validates data, counts its pages and returns an optimized copy. The
// original bytes are returned unchanged when optimization does not shrink them.
func Inspect(data []byte) ([]byte, Info, error) {
	conf := model.NewDefaultConfiguration()
	info := Info{OriginalSize: len(data)}

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, info, fmt.Errorf("rendered pdf failed validation: %w", err)
	}
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, info, fmt.Errorf("failed to get page count: %w", err)
	}
	info.Pages = pages

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, conf); err != nil || out.Len() == 0 || out.Len() >= len(data) {
		info.OptimizedSize = len(data)
		return data, info, nil
	}
	info.OptimizedSize = out.Len()
	return out.Bytes(), info, nil
}
