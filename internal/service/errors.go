package service

import (
	"errors"

	"github.com/fjod/cartsync/internal/product"
	"github.com/fjod/cartsync/internal/repository"
)

var (
	// ErrUnauthorized is returned when a cart operation has no owner identity.
	ErrUnauthorized = errors.New("not authenticated")

	ErrCartNotFound    = repository.ErrCartNotFound
	ErrProductNotFound = product.ErrProductNotFound
)
