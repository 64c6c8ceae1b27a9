// Package ai resolves configured language-model providers and runs text
// generation for the writing pipeline. Providers are unified behind
// go.jetify.com/ai language models (plus a raw chat-completions path for
// self-hosted OpenAI-compatible servers); sampling parameters come from the
// generation section of the runtime config.
package ai

import (
	"context"
	"errors"
	"strings"

	appcfg "github.com/neperienx/bookpipeline/internal/config"
	"github.com/neperienx/bookpipeline/internal/modules/system/core/configs"
)

// ErrNoProvider is returned when no enabled provider with an API key matches
// the requested purpose.
var ErrNoProvider = errors.New("no enabled AI provider")

// Service resolves providers from runtime config and issues generation calls.
type Service struct {
	cfgSvc *configs.Service
}

func NewService(cfgSvc *configs.Service) *Service {
	return &Service{cfgSvc: cfgSvc}
}

// Generate runs a single blocking generation call for the given purpose.
func (s *Service) Generate(ctx context.Context, purpose Purpose, systemPrompt, prompt string) (Result, error) {
	provider, gen, err := s.resolve(purpose)
	if err != nil {
		return Result{}, err
	}
	text, err := callWithSystemPrompt(ctx, provider, gen, systemPrompt, prompt)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Model: resolvedModelID(provider)}, nil
}

// GenerateStream runs a generation call for the given purpose, invoking
// onToken for each delta. Providers without streaming support fall back to a
// blocking call and deliver the full text as one token.
func (s *Service) GenerateStream(ctx context.Context, purpose Purpose, systemPrompt, prompt string, onToken func(string)) (Result, error) {
	provider, gen, err := s.resolve(purpose)
	if err != nil {
		return Result{}, err
	}
	text, err := callStream(ctx, provider, gen, systemPrompt, prompt, onToken)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Model: resolvedModelID(provider)}, nil
}

// GeneratorFor adapts a purpose-bound generation call to the plain
// prompt-in/text-out shape the chapter plan engine consumes.
func (s *Service) GeneratorFor(purpose Purpose, systemPrompt string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		res, err := s.Generate(ctx, purpose, systemPrompt, prompt)
		if err != nil {
			return "", err
		}
		return res.Text, nil
	}
}

// ModelFor reports which model a purpose currently resolves to, without
// issuing a call. Returns "" when no provider is available.
func (s *Service) ModelFor(purpose Purpose) string {
	provider, _, err := s.resolve(purpose)
	if err != nil {
		return ""
	}
	return resolvedModelID(provider)
}

func (s *Service) resolve(purpose Purpose) (*appcfg.AIProvider, appcfg.GenerationOptions, error) {
	cfg, err := s.cfgSvc.Get()
	if err != nil {
		return nil, appcfg.GenerationOptions{}, err
	}
	provider := selectAIProvider(cfg.AI, assignmentFor(cfg.AI, purpose))
	if provider == nil || strings.TrimSpace(provider.APIKey) == "" {
		return nil, appcfg.GenerationOptions{}, ErrNoProvider
	}
	return provider, cfg.Generation, nil
}

func assignmentFor(cfg appcfg.AIConfig, purpose Purpose) *appcfg.AIModelAssignment {
	switch purpose {
	case PurposeOutline:
		return cfg.OutlineModel
	case PurposeCharacters:
		return cfg.CharacterModel
	case PurposeChapters:
		return cfg.ChapterModel
	case PurposeDrafts:
		return cfg.DraftModel
	}
	return nil
}
