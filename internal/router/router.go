package router

import (
	"context"
	"fmt"

	"manuscript-assist/internal/models"
	"manuscript-assist/internal/provider"
)

// Router dispatches completion requests to the appropriate provider.
type Router struct {
	registry *provider.Registry
}

// New constructs a router backed by the provided registry.
func New(registry *provider.Registry) *Router {
	return &Router{
		registry: registry,
	}
}

// Open routes a streaming completion request to the provider serving its model.
func (r *Router) Open(ctx context.Context, req models.CompletionRequest) (provider.Stream, error) {
	modelInfo, providerImpl, err := r.registry.LookupModel(req.Model)
	if err != nil {
		return nil, err
	}

	sanitisedReq := req
	sanitisedReq.Model = modelInfo.ID

	stream, err := providerImpl.CreateCompletion(ctx, sanitisedReq)
	if err != nil {
		return nil, fmt.Errorf("provider %s completion request: %w", providerImpl.Name(), err)
	}
	return stream, nil
}
