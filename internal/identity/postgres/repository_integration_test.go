// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/multilogin/internal/identity"
	"github.com/holomush/multilogin/internal/identity/postgres"
)

var _ = Describe("Repository", func() {
	var (
		ctx  context.Context
		repo *postgres.Repository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewRepository(testPool)
		_, err := testPool.Exec(ctx, `TRUNCATE identities`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("round-trips an identity", func() {
		now := time.Now().UTC().Truncate(time.Microsecond)
		ident, err := identity.NewIdentity("Notch", uuid.New(), "OFFICIAL", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, ident)).To(Succeed())

		got, err := repo.Get(ctx, "Notch")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.UUID).To(Equal(ident.UUID))
		Expect(got.AuthorityLabel).To(Equal("OFFICIAL"))
		Expect(got.CreatedAt.Equal(now)).To(BeTrue())
	})

	It("maps a duplicate insert to ErrAlreadyExists", func() {
		first, _ := identity.NewIdentity("Notch", uuid.New(), "OFFICIAL", time.Now())
		second, _ := identity.NewIdentity("Notch", uuid.New(), "LittleSkin", time.Now())
		Expect(repo.Create(ctx, first)).To(Succeed())
		Expect(repo.Create(ctx, second)).To(MatchError(identity.ErrAlreadyExists))
	})

	It("reports missing rows as ErrNotFound", func() {
		_, err := repo.Get(ctx, "Ghost")
		Expect(err).To(MatchError(identity.ErrNotFound))
		Expect(repo.UpdateAuthority(ctx, "Ghost", "OFFICIAL", time.Now())).To(MatchError(identity.ErrNotFound))
		Expect(repo.Delete(ctx, "Ghost")).To(MatchError(identity.ErrNotFound))
	})

	It("converges concurrent first logins on one identifier", func() {
		s, err := identity.NewStore(repo)
		Expect(err).NotTo(HaveOccurred())

		const workers = 16
		results := make([]uuid.UUID, workers)
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				id, err := s.GetOrCreateIdentity(ctx, "Notch", uuid.New(), "OFFICIAL")
				Expect(err).NotTo(HaveOccurred())
				results[i] = id
			}()
		}
		wg.Wait()

		for _, id := range results {
			Expect(id).To(Equal(results[0]))
		}
	})
})
