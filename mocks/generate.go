package mocks

//go:generate mockgen -destination=mock_storage.go -package=mocks github.com/pribylovaa/go-local-auth/internal/storage Storage
//go:generate mockgen -destination=mock_limiter.go -package=mocks github.com/pribylovaa/go-local-auth/internal/service Limiter
