package inspect

import (
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

// Validate validates an inspection request
func (r *Request) Validate() error {
	// Device path is required
	if r.Target.Path == "" {
		return app.NewError(app.ErrCodeInvalidInput, "device path is required", nil)
	}

	// Backend name only matters when no backend is injected
	if r.Backend == nil {
		if err := r.Target.Validate(); err != nil {
			return app.NewError(app.ErrCodeInvalidInput, "invalid device target", err)
		}
	}

	return nil
}
