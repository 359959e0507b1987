package service

import (
	"sync"

	"go.uber.org/zap"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps         ProofServiceDeps
	logger       *zap.Logger
	once         sync.Once
	proofService *ProofService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(deps ProofServiceDeps, logger *zap.Logger) *ServiceFactory {
	if deps.Logger == nil {
		deps.Logger = logger.Named("proof_service")
	}
	return &ServiceFactory{
		deps:   deps,
		logger: logger,
	}
}

// ProofService returns the proof service instance (singleton)
func (f *ServiceFactory) ProofService() *ProofService {
	f.once.Do(func() {
		f.proofService = NewProofService(f.deps)
	})
	return f.proofService
}

// Cleanup drops cached key material held by the services.
func (f *ServiceFactory) Cleanup() {
	if f.deps.Encryption != nil {
		f.deps.Encryption.ClearCache()
	}
	f.logger.Info("Service factory cleaned up")
}
