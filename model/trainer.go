// Package model provides the computation step a receiver runs after all
// items have arrived: it turns the received feature matrix and label
// vector into an opaque model blob that travels back to the sender.
package model

import (
	"context"
	"errors"
	"io"
)

// ErrMalformedInput is returned when training input cannot be decoded or
// has inconsistent shapes.
var ErrMalformedInput = errors.New("malformed training input")

// Trainer computes a model blob from received items.
type Trainer interface {
	Train(ctx context.Context, features, labels io.Reader) ([]byte, error)
}

// TrainerFunc adapts a function to Trainer.
type TrainerFunc func(ctx context.Context, features, labels io.Reader) ([]byte, error)

// Train calls f.
func (f TrainerFunc) Train(ctx context.Context, features, labels io.Reader) ([]byte, error) {
	return f(ctx, features, labels)
}

// Verify TrainerFunc implements Trainer.
var _ Trainer = TrainerFunc(nil)
