// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package station

import "github.com/pkg/errors"

var (
	// ErrInvalidConfiguration reports malformed static model data.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrMissingBounds reports a bound that could not be derived from
	// declared bounds or history.
	ErrMissingBounds = errors.New("missing bounds")
	// ErrInvalidHistory reports a malformed or too short status history.
	ErrInvalidHistory = errors.New("invalid history")
)

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidConfiguration, format, args...)
}
