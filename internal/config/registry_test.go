package config_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/intervoxa/internal/config"
	"github.com/MrWong99/intervoxa/pkg/provider/stt"
	sttmock "github.com/MrWong99/intervoxa/pkg/provider/stt/mock"
)

func TestRegistry_CreateRegisteredProvider(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var seen config.ProviderEntry
	reg.RegisterSTT("mock", func(entry config.ProviderEntry) (stt.Provider, error) {
		seen = entry
		return &sttmock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "mock", Model: "whisper-1"}
	p, err := reg.CreateSTT(entry)
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p == nil {
		t.Fatal("CreateSTT returned nil provider")
	}
	if seen.Model != "whisper-1" {
		t.Errorf("factory received entry %+v", seen)
	}
}

func TestRegistry_UnregisteredProvider(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		t.Error("overwritten factory was called")
		return nil, nil
	})
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
}
