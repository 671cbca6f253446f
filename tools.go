// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools
// +build tools

// Package main keeps the multilogin test frameworks in go.mod. The ginkgo
// suites under internal/identity/postgres only build with the integration
// tag, so nothing else would hold ginkgo and gomega there.
package main

import (
	// Unit and integration test frameworks
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
	_ "github.com/stretchr/testify/assert"
	_ "github.com/stretchr/testify/mock"
	_ "github.com/stretchr/testify/require"
)
