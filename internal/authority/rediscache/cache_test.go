// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/holomush/multilogin/internal/authority"
)

type CacheSuite struct {
	suite.Suite
	mini  *miniredis.Miniredis
	cache *Cache
	ctx   context.Context
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	s.cache = NewWithClient(client, nil)
	s.ctx = context.Background()
}

func (s *CacheSuite) TearDownTest() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
}

func (s *CacheSuite) TestMissOnEmpty() {
	props, ok := s.cache.Get(s.ctx, "Alice:LittleSkin")
	s.False(ok)
	s.Nil(props)
}

func (s *CacheSuite) TestRoundTripPreservesOrderAndSignature() {
	in := []authority.Property{
		{Name: "textures", Value: "dGV4dHVyZXM=", Signature: "c2ln"},
		{Name: "uploadableTextures", Value: "skin,cape"},
	}
	s.cache.Set(s.ctx, "Alice:LittleSkin", in, time.Minute)

	out, ok := s.cache.Get(s.ctx, "Alice:LittleSkin")
	s.Require().True(ok)
	s.Equal(in, out)
	s.True(s.mini.Exists(keyPrefix + "Alice:LittleSkin"))
}

func (s *CacheSuite) TestExpiry() {
	s.cache.Set(s.ctx, "Bob:LittleSkin", []authority.Property{{Name: "textures", Value: "v"}}, 30*time.Minute)

	s.mini.FastForward(29 * time.Minute)
	_, ok := s.cache.Get(s.ctx, "Bob:LittleSkin")
	s.True(ok)

	s.mini.FastForward(2 * time.Minute)
	_, ok = s.cache.Get(s.ctx, "Bob:LittleSkin")
	s.False(ok)
}

func (s *CacheSuite) TestCorruptEntryIsMiss() {
	s.Require().NoError(s.mini.Set(keyPrefix+"Carol:X", "not-json"))

	_, ok := s.cache.Get(s.ctx, "Carol:X")
	s.False(ok)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), "://bad", nil)
	if err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}
