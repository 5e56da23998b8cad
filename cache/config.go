package cache

import (
	"context"
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// KeyConfig holds the TTL and ramp percentage for each layer a use case
// is allowed to use. Both a TTL and a ramp value must be present for a
// layer before the Controller will let traffic reach it; ramp is a
// percentage in [0, 100] sampled uniformly per call (100 always caches,
// 0 never does, 1-99 samples).
//
// Grounded on GCacheKeyConfig in the original implementation, including
// its dict[CacheLayer, int] shape and the legacy string-wrapped JSON
// form supported by GCacheKeyConfig.loads.
type KeyConfig struct {
	TTLSeconds map[Layer]int `json:"ttl_sec"`
	Ramp       map[Layer]int `json:"ramp"`
}

// NewEnabledKeyConfig returns a KeyConfig enabling every layer at the
// given TTL with a 100% ramp, mirroring GCacheKeyConfig.enabled. TTLs are
// stored in whole seconds: any fraction of ttl is dropped, so a ttl under
// one second yields 0.
func NewEnabledKeyConfig(ttl time.Duration) *KeyConfig {
	kc := &KeyConfig{
		TTLSeconds: map[Layer]int{},
		Ramp:       map[Layer]int{},
	}
	for _, l := range []Layer{LayerNoop, LayerLocal, LayerRemote} {
		kc.TTLSeconds[l] = int(ttl.Seconds())
		kc.Ramp[l] = 100
	}
	return kc
}

// TTL returns the configured time.Duration for layer, and whether one
// was configured at all.
func (kc *KeyConfig) TTL(layer Layer) (time.Duration, bool) {
	if kc == nil {
		return 0, false
	}
	sec, ok := kc.TTLSeconds[layer]
	if !ok {
		return 0, false
	}
	return time.Duration(sec) * time.Second, true
}

// RampPercent returns the configured ramp percentage for layer, and
// whether one was configured at all.
func (kc *KeyConfig) RampPercent(layer Layer) (int, bool) {
	if kc == nil {
		return 0, false
	}
	r, ok := kc.Ramp[layer]
	return r, ok
}

// Usable reports whether layer has both a TTL and a ramp configured,
// the gate the Controller checks before considering sampling.
func (kc *KeyConfig) Usable(layer Layer) bool {
	if kc == nil {
		return false
	}
	_, hasTTL := kc.TTLSeconds[layer]
	_, hasRamp := kc.Ramp[layer]
	return hasTTL && hasRamp
}

// Validate checks ramp percentages are within [0, 100].
func (kc KeyConfig) Validate() error {
	for layer, r := range kc.Ramp {
		if err := validation.Validate(r, validation.Min(0), validation.Max(100)); err != nil {
			return newErr(CategoryKeyConstructionFailed, "invalid ramp for layer %s: %v", layer, err)
		}
	}
	return nil
}

// Dumps serializes a KeyConfig to its canonical JSON form.
func (kc *KeyConfig) Dumps() (string, error) {
	b, err := json.Marshal(kc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LoadKeyConfig parses either a KeyConfig JSON object or a JSON string
// containing one (the legacy stringified-inner-config form), matching
// GCacheKeyConfig.loads.
func LoadKeyConfig(data []byte) (*KeyConfig, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return LoadKeyConfig([]byte(s))
	}
	var kc KeyConfig
	if err := json.Unmarshal(data, &kc); err != nil {
		return nil, err
	}
	return &kc, nil
}

// KeyConfigs is a collection of per-use-case configs. A value may be a
// plain KeyConfig, or a nested map of environment name to KeyConfig, the
// legacy override-by-environment form supported by
// GCacheKeyConfig.load_configs/dump_configs.
type KeyConfigs map[string]json.RawMessage

// ResolveUseCase extracts the KeyConfig for useCase, optionally scoped to
// environment when the stored value is a nested environment map rather
// than a bare KeyConfig.
func (c KeyConfigs) ResolveUseCase(useCase, environment string) (*KeyConfig, error) {
	raw, ok := c[useCase]
	if !ok {
		return nil, nil
	}
	// A nested environment map also decodes into a KeyConfig without error,
	// just an empty one, so only a decode that found ttl_sec or ramp counts
	// as a bare KeyConfig.
	if kc, err := LoadKeyConfig(raw); err == nil && (kc.TTLSeconds != nil || kc.Ramp != nil) {
		return kc, nil
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, err
	}
	envRaw, ok := nested[environment]
	if !ok {
		return nil, nil
	}
	return LoadKeyConfig(envRaw)
}

// ConfigProvider resolves the KeyConfig for a Key. Returning (nil, nil)
// tells the Controller to fall back to the Key's DefaultConfig.
type ConfigProvider func(ctx context.Context, key Key) (*KeyConfig, error)

// NoopConfigProvider always returns (nil, nil), matching
// _default_config_provider in the original implementation.
func NoopConfigProvider(context.Context, Key) (*KeyConfig, error) {
	return nil, nil
}

// Config holds process-level cache settings not tied to any one use
// case: the URN namespace and the metrics label prefix. Transport
// (Redis) and logging settings live in engine.Config, which composes
// this type, keeping this package free of transport dependencies.
type Config struct {
	URNPrefix     string
	MetricsPrefix string
}

// DefaultConfig mirrors GCacheGlobalState's defaults (urn_prefix "urn")
// and GCacheConfig's metrics_prefix default ("api_").
func DefaultConfig() Config {
	return Config{
		URNPrefix:     "urn",
		MetricsPrefix: "api_",
	}
}
