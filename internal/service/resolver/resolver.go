package resolver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/supportbot/internal/analysis/keyword"
	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/model/chat"
)

// ResponseProvider generates a reply for userText. transcript already
// contains the user's message as its last entry.
type ResponseProvider interface {
	GenerateResponse(ctx context.Context, userText string, transcript []chat.Message) (string, error)
}

// ProviderFunc adapts a function to ResponseProvider.
type ProviderFunc func(ctx context.Context, userText string, transcript []chat.Message) (string, error)

func (f ProviderFunc) GenerateResponse(ctx context.Context, userText string, transcript []chat.Message) (string, error) {
	return f(ctx, userText, transcript)
}

// ErrorSink receives failures of the live response sources.
type ErrorSink interface {
	OnError(err error)
}

// Clock is the time source used for the minimum reply latency.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Deps are the collaborators a Resolver is built with. All fields are optional.
type Deps struct {
	Provider   ResponseProvider
	Errors     ErrorSink
	HTTPClient *http.Client
	Rand       keyword.Rand
	Clock      Clock
}

// Resolver picks the reply for a user message. A configured provider wins
// outright; the remote endpoint is only consulted when there is no provider;
// the keyword matcher answers whenever neither produces a reply.
type Resolver struct {
	provider ResponseProvider
	remote   *RemoteClient
	errors   ErrorSink
	matcher  *keyword.Matcher
	delay    time.Duration
	jitter   time.Duration
	rnd      keyword.Rand
	clock    Clock
	logger   zerolog.Logger
}

// New builds a resolver for opts.
func New(opts config.Options, deps Deps) *Resolver {
	r := &Resolver{
		provider: deps.Provider,
		errors:   deps.Errors,
		matcher:  keyword.NewMatcher(opts.KnowledgeBase, opts.Keywords, deps.Rand),
		delay:    opts.ResponseDelayDuration(),
		jitter:   opts.ResponseJitterDuration(),
		rnd:      deps.Rand,
		clock:    deps.Clock,
		logger:   log.With().Str("component", "resolver").Logger(),
	}
	if r.rnd == nil {
		r.rnd = globalRand{}
	}
	if r.clock == nil {
		r.clock = RealClock
	}
	if opts.RemoteEnabled() {
		r.remote = NewRemoteClient(opts.APIEndpoint, opts.APIKey, opts.APIHeaders, deps.HTTPClient)
	}
	return r
}

// Resolve returns the reply for userText. It never fails: errors from the
// provider or the endpoint are reported to the ErrorSink and answered from
// the knowledge base. The reply is held back until the minimum delay plus
// jitter has passed since the call started; ctx cancellation cuts the wait
// short but still yields a reply.
func (r *Resolver) Resolve(ctx context.Context, userText string, transcript []chat.Message) string {
	started := r.clock.Now()
	wait := r.delay + r.drawJitter()

	reply := r.generate(ctx, userText, transcript)

	if remaining := wait - r.clock.Now().Sub(started); remaining > 0 {
		select {
		case <-r.clock.After(remaining):
		case <-ctx.Done():
		}
	}
	return reply
}

// Fallback answers from the knowledge base only.
func (r *Resolver) Fallback(userText string) string {
	return r.matcher.Reply(userText)
}

func (r *Resolver) generate(ctx context.Context, userText string, transcript []chat.Message) string {
	var source ResponseProvider
	var name string
	switch {
	case r.provider != nil:
		source, name = r.provider, "provider"
	case r.remote != nil:
		source, name = r.remote, "remote"
	default:
		return r.Fallback(userText)
	}

	reply, err := safeGenerate(ctx, source, userText, transcript)
	if err != nil {
		r.logger.Warn().Err(err).Str("source", name).Msg("live response failed, using knowledge base")
		r.report(err)
		return r.Fallback(userText)
	}
	return reply
}

func (r *Resolver) report(err error) {
	if r.errors == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("error sink panicked")
		}
	}()
	r.errors.OnError(err)
}

func (r *Resolver) drawJitter() time.Duration {
	ms := int(r.jitter / time.Millisecond)
	if ms <= 0 {
		return 0
	}
	return time.Duration(r.rnd.IntN(ms)) * time.Millisecond
}

// safeGenerate turns a provider panic into an error.
func safeGenerate(ctx context.Context, p ResponseProvider, userText string, transcript []chat.Message) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("response provider panicked: %v", rec)
		}
	}()
	return p.GenerateResponse(ctx, userText, transcript)
}
