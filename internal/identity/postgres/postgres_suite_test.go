// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/multilogin/internal/identity/postgres"
	"github.com/holomush/multilogin/internal/store"
)

var (
	testPool      *pgxpool.Pool
	testContainer *tcpostgres.PostgresContainer
)

func TestPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Identity Postgres Suite")
}

var _ = BeforeSuite(func() {
	ctx := context.Background()

	var err error
	testContainer, err = tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("multilogin_test"),
		tcpostgres.WithUsername("multilogin"),
		tcpostgres.WithPassword("multilogin"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := testContainer.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	m, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(m.Up()).To(Succeed())
	Expect(m.Close()).To(Succeed())

	testPool, err = postgres.Open(ctx, connStr, nil)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if testPool != nil {
		testPool.Close()
	}
	if testContainer != nil {
		Expect(testContainer.Terminate(context.Background())).To(Succeed())
	}
})
