// Package decision decides which renders the result cache keeps.
package decision

import "github.com/chomoku/kyoto-hexmap/internal/core/model"

type Interface interface {
	// Observe records one request for the admission policy.
	Observe(req model.RenderRequest)
	ShouldCache(req model.RenderRequest) bool
}
