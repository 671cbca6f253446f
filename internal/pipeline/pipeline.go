// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/multilogin/internal/authority"
	"github.com/holomush/multilogin/internal/failure"
	"github.com/holomush/multilogin/pkg/errutil"
)

var tracer = otel.Tracer("multilogin/pipeline")

// UnverifiedLabel is the reserved lock label for names admitted without any
// authority vouching for them.
const UnverifiedLabel = "UNVERIFIED"

// Defaults for Options.
const (
	DefaultPerAuthorityTimeout = 5 * time.Second
	DefaultDiscoveryTimeout    = 8 * time.Second
	minConcurrent              = 4
)

// CodeConfigInvalid marks pipeline construction errors.
const CodeConfigInvalid = "PIPELINE_CONFIG_INVALID"

// Mode is the branch an attempt took.
type Mode string

// Modes.
const (
	// ModeLockCheck is reported when the attempt failed before branching.
	ModeLockCheck Mode = "lock_check"
	ModeStrict    Mode = "strict"
	ModeDiscovery Mode = "discovery"
)

// Outcome is the terminal state of an attempt.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess        Outcome = "success"
	OutcomeDeferredReject Outcome = "deferred_reject"
)

// Result is what Authenticate hands back to the host.
type Result struct {
	// Profile is the verified profile carrying the stored identifier, or a
	// placeholder on rejection.
	Profile *authority.Profile
	Outcome Outcome
	// Failure is set on rejection. The same value is held by the
	// FailureRecorder until taken.
	Failure *failure.Failure
	// Authority is the label that verified the name, or the label involved
	// in the failure.
	Authority string
	Mode      Mode
}

// Accepted reports whether the attempt succeeded.
func (r *Result) Accepted() bool {
	return r.Outcome == OutcomeSuccess
}

// IdentityStore is the subset of identity.Store the pipeline needs.
type IdentityStore interface {
	GetLock(ctx context.Context, name string) (label string, found bool, err error)
	GetUUID(ctx context.Context, name string) (id uuid.UUID, found bool, err error)
	GetOrCreateIdentity(ctx context.Context, name string, incoming uuid.UUID, label string) (uuid.UUID, error)
}

// FailureRecorder receives deferred rejection reasons.
type FailureRecorder interface {
	Record(name, reason, label string)
	Clear(name string)
}

// Options tunes a Pipeline. Zero values select the defaults.
type Options struct {
	// AllowUnverified admits names no authority verified, under an offline
	// identifier and UnverifiedLabel.
	AllowUnverified     bool
	PerAuthorityTimeout time.Duration
	DiscoveryTimeout    time.Duration
	// MaxConcurrent bounds in-flight attempts. Defaults to max(4, NumCPU).
	MaxConcurrent int
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PerAuthorityTimeout <= 0 {
		o.PerAuthorityTimeout = DefaultPerAuthorityTimeout
	}
	if o.DiscoveryTimeout <= 0 {
		o.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = max(minConcurrent, runtime.NumCPU())
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Pipeline is an immutable authentication chain. Reloads build a new one.
type Pipeline struct {
	authorities []authority.Authority
	byLabel     map[string]authority.Authority
	store       IdentityStore
	failures    FailureRecorder
	opts        Options
	logger      *slog.Logger
	sem         chan struct{}
}

// New creates a Pipeline over authorities in the given order.
func New(authorities []authority.Authority, store IdentityStore, failures FailureRecorder, opts Options) (*Pipeline, error) {
	if store == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("identity store is required")
	}
	if failures == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("failure recorder is required")
	}

	byLabel := make(map[string]authority.Authority, len(authorities))
	for i, a := range authorities {
		if a == nil {
			return nil, oops.Code(CodeConfigInvalid).With("position", i).Errorf("authority is nil")
		}
		label := a.Label()
		if err := checkLabel(label); err != nil {
			return nil, err
		}
		if _, dup := byLabel[label]; dup {
			return nil, oops.Code(CodeConfigInvalid).With("label", label).Errorf("duplicate authority label")
		}
		byLabel[label] = a
	}

	opts = opts.withDefaults()
	return &Pipeline{
		authorities: append([]authority.Authority(nil), authorities...),
		byLabel:     byLabel,
		store:       store,
		failures:    failures,
		opts:        opts,
		logger:      opts.Logger.With("component", "pipeline"),
		sem:         make(chan struct{}, opts.MaxConcurrent),
	}, nil
}

func checkLabel(label string) error {
	if label == "" {
		return oops.Code(CodeConfigInvalid).Errorf("authority label cannot be empty")
	}
	if label == UnverifiedLabel {
		return oops.Code(CodeConfigInvalid).With("label", label).Errorf("authority label is reserved")
	}
	return nil
}

// Labels returns the configured labels in order.
func (p *Pipeline) Labels() []string {
	labels := make([]string, len(p.authorities))
	for i, a := range p.authorities {
		labels[i] = a.Label()
	}
	return labels
}

// Authenticate runs one join attempt for name. Rejections are returned as a
// Result with OutcomeDeferredReject, never as an error. An error means the
// attempt did not run: the request was invalid or ctx ended while waiting
// for a worker slot.
func (p *Pipeline) Authenticate(ctx context.Context, name, serverID string) (*Result, error) {
	if name == "" {
		return nil, oops.Code("PIPELINE_INVALID_REQUEST").Errorf("name is required")
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, oops.Code("PIPELINE_BUSY").With("name", name).Wrap(ctx.Err())
	}
	defer func() { <-p.sem }()

	attemptID := ulid.Make().String()
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.authenticate",
		trace.WithAttributes(
			attribute.String("player.name", name),
			attribute.String("attempt.id", attemptID),
		),
	)
	a := &attempt{
		p:        p,
		name:     name,
		serverID: serverID,
		logger:   p.logger.With("attempt_id", attemptID, "name", name),
	}

	res := a.run(ctx)

	span.SetAttributes(
		attribute.String("auth.mode", string(res.Mode)),
		attribute.String("auth.outcome", string(res.Outcome)),
		attribute.String("auth.authority", res.Authority),
	)
	if res.Failure != nil {
		span.SetStatus(codes.Error, res.Failure.Reason)
	}
	span.End()
	recordAttempt(res.Mode, res.Outcome, time.Since(start))
	return res, nil
}

// attempt carries per-call state through the state machine.
type attempt struct {
	p        *Pipeline
	name     string
	serverID string
	logger   *slog.Logger
}

func (a *attempt) run(ctx context.Context) *Result {
	label, locked, err := a.p.store.GetLock(ctx, a.name)
	if err != nil {
		errutil.Log(ctx, a.logger, slog.LevelError, "lock lookup failed", err)
		return a.reject(ctx, ModeLockCheck, failure.ReasonStorageFailed, "")
	}

	if locked {
		if auth, ok := a.p.byLabel[label]; ok {
			return a.strict(ctx, auth)
		}
		a.logger.WarnContext(ctx, "locked authority is not configured, falling back to discovery",
			"authority", label)
	}
	return a.discover(ctx)
}

// strict consults only the authority the name is locked to.
func (a *attempt) strict(ctx context.Context, auth authority.Authority) *Result {
	label := auth.Label()
	cctx, cancel := context.WithTimeout(ctx, a.p.opts.PerAuthorityTimeout)
	profile := a.call(cctx, auth)
	cancel()

	if profile == nil {
		a.logger.InfoContext(ctx, "locked authority did not verify", "authority", label)
		return a.reject(ctx, ModeStrict, failure.ReasonStrictAuthFailed, label)
	}
	return a.takeover(ctx, ModeStrict, profile, label)
}

func (a *attempt) discover(ctx context.Context) *Result {
	profile, auth := a.p.race(ctx, a)
	if profile != nil {
		return a.takeover(ctx, ModeDiscovery, profile, auth.Label())
	}

	if a.p.opts.AllowUnverified {
		a.logger.InfoContext(ctx, "no authority verified, admitting as unverified")
		offline := &authority.Profile{Name: a.name, ID: authority.OfflineUUID(a.name)}
		return a.takeover(ctx, ModeDiscovery, offline, UnverifiedLabel)
	}

	a.logger.InfoContext(ctx, "no authority verified", "authorities", len(a.p.authorities))
	return a.reject(ctx, ModeDiscovery, failure.ReasonAllProvidersFailed, "")
}

// takeover binds the verified profile to the stored identifier. The
// authority's properties travel with the rewritten profile.
func (a *attempt) takeover(ctx context.Context, mode Mode, profile *authority.Profile, label string) *Result {
	id, err := a.p.store.GetOrCreateIdentity(ctx, a.name, profile.ID, label)
	if err != nil {
		errutil.Log(ctx, a.logger, slog.LevelError, "identity takeover failed", err, "authority", label)
		return a.reject(ctx, mode, failure.ReasonStorageFailed, label)
	}

	a.p.failures.Clear(a.name)
	a.logger.InfoContext(ctx, "join verified",
		"authority", label,
		"mode", string(mode),
		"uuid", id.String())
	verified := profile.WithID(id)
	verified.Name = a.name
	return &Result{
		Profile:   verified,
		Outcome:   OutcomeSuccess,
		Authority: label,
		Mode:      mode,
	}
}

// reject records the reason and returns a placeholder profile. The
// placeholder carries the stored identifier when one exists so the host
// never sees a fresh identifier for a known name.
func (a *attempt) reject(ctx context.Context, mode Mode, reason, label string) *Result {
	a.p.failures.Record(a.name, reason, label)

	id := authority.OfflineUUID(a.name)
	if mode != ModeLockCheck {
		if stored, found, err := a.p.store.GetUUID(ctx, a.name); err == nil && found {
			id = stored
		}
	}

	return &Result{
		Profile:   &authority.Profile{Name: a.name, ID: id},
		Outcome:   OutcomeDeferredReject,
		Failure:   &failure.Failure{Reason: reason, Authority: label, RecordedAt: time.Now()},
		Authority: label,
		Mode:      mode,
	}
}

// call invokes one authority and folds every failure into a nil profile.
func (a *attempt) call(ctx context.Context, auth authority.Authority) (profile *authority.Profile) {
	label := auth.Label()
	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "authority panicked",
				"authority", label,
				"panic", fmt.Sprint(r))
			recordAuthorityResult(label, resultPanic)
			profile = nil
		}
	}()

	profile, err := auth.Authenticate(ctx, a.name, a.serverID)
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		a.logger.DebugContext(ctx, "authority timed out", "authority", label)
		recordAuthorityResult(label, resultTimeout)
		return nil
	case err != nil && ctx.Err() != nil:
		// Cancelled because another authority already won.
		return nil
	case err != nil:
		errutil.Log(ctx, a.logger, slog.LevelWarn, "authority call failed", err, "authority", label)
		recordAuthorityResult(label, resultError)
		return nil
	case profile == nil:
		recordAuthorityResult(label, resultNotVerified)
		return nil
	case profile.Name != a.name:
		// A session for another name proves nothing about this one. The
		// comparison is exact: identities are keyed by the requested name.
		a.logger.WarnContext(ctx, "authority returned a different name",
			"authority", label,
			"returned_name", profile.Name)
		recordAuthorityResult(label, resultNameMismatch)
		return nil
	}
	recordAuthorityResult(label, resultVerified)
	return profile
}
