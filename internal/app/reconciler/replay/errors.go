// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"fmt"

	"github.com/pkg/errors"
)

// FatalError marks an irreconcilable condition: the run must abort instead
// of guessing. Everything else is recoverable drift.
type FatalError struct {
	reason string
}

func (e *FatalError) Error() string {
	return e.reason
}

func Fatalf(format string, args ...interface{}) error {
	return &FatalError{reason: fmt.Sprintf(format, args...)}
}

func IsFatal(err error) bool {
	_, ok := errors.Cause(err).(*FatalError)
	return ok
}
