// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/multilogin/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("MY_CODE").Errorf("test error")
	errutil.AssertErrorCode(t, err, "MY_CODE")
}

func TestAssertErrorCode_WrappedCode(t *testing.T) {
	err := oops.With("operation", "outer").Wrap(oops.Code("INNER_CODE").Errorf("inner"))
	errutil.AssertErrorCode(t, err, "INNER_CODE")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("name", "Bob").Errorf("test error")
	errutil.AssertErrorContext(t, err, "name", "Bob")
}
