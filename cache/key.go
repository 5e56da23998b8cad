package cache

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Arg is a single (name, stringified-value) pair appended to a Key's URN
// query string, in the order the KeyBuilder produced them.
type Arg struct {
	Name  string
	Value string
}

// Key identifies one cacheable value. It is immutable once built: URN and
// Prefix are computed once by KeyBuilder.Build and never recomputed, the
// same way the original implementation freezes them in
// GCacheKey.__post_init__.
//
// Key has no equality method and is not comparable with == (Args is a
// slice). The tiers identify an entry by its URN, so two Keys built by the
// same KeyBuilder with equal KeyType, ID, UseCase, Args and tracking flag
// address the same entry.
type Key struct {
	KeyType              string
	ID                   string
	UseCase              string
	Args                 []Arg
	InvalidationTracking bool
	DefaultConfig        *KeyConfig
	// Codec overrides how the remote tier encodes/decodes this key's
	// value. Nil means the remote tier's default codec is used. Set by
	// the engine package after Build, from the cached function's return
	// type, so decode round-trips to the concrete Go type instead of a
	// generic map.
	Codec Codec

	// Prefix is "[{]URN_PREFIX:KEY_TYPE:ID[}]" — braces present iff
	// InvalidationTracking is set, so a sharded store co-locates the
	// value key with its watermark key (hash-tag semantics).
	Prefix string
	// URN is "Prefix[?args]#UseCase", the full cache key string.
	URN string
}

// Codec converts between a cached Go value and its wire representation.
// Defined here (rather than in the tier package) so a Key can carry one
// without tier depending back on cache for the Key type it decorates.
type Codec interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// WatermarkKey returns the key under which this Key's invalidation
// watermark is stored: "{URN_PREFIX:KEY_TYPE:ID}#watermark". It is only
// meaningful when InvalidationTracking is true.
func (k Key) WatermarkKey() string {
	prefix := k.Prefix
	if !strings.HasPrefix(prefix, "{") {
		prefix = "{" + prefix + "}"
	}
	return prefix + "#watermark"
}

// Fingerprint returns a short hex digest of the URN suitable for log
// lines. URNs are not escaped (argument values may contain arbitrary
// text) and may be large or sensitive, so logs reference the fingerprint
// rather than the raw URN.
func (k Key) Fingerprint() string {
	sum := xxhash.Sum64String(k.URN)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (56 - 8*i))
	}
	return hex.EncodeToString(buf[:])
}

func (k Key) String() string {
	return k.URN
}

// KeyBuilder constructs Keys with a consistent URN scheme:
//
//	[{]URN_PREFIX:KEY_TYPE:ID[}][?k1=v1&k2=v2...]#USE_CASE
//
// the brace pair is present iff invalidation tracking is requested.
// Grounded on GCacheKey.__post_init__ in the original implementation.
type KeyBuilder struct {
	urnPrefix string
}

// NewKeyBuilder returns a KeyBuilder that namespaces every key under
// urnPrefix (e.g. "urn"). An empty prefix omits the namespace segment.
func NewKeyBuilder(urnPrefix string) *KeyBuilder {
	return &KeyBuilder{urnPrefix: urnPrefix}
}

// Build assembles a Key from its identifying components. args must
// already be sorted by name by the caller (the engine package sorts
// bound function arguments before calling Build so URNs are stable
// regardless of call-site argument order).
func (b *KeyBuilder) Build(keyType, id, useCase string, args []Arg, invalidationTracking bool, defaultConfig *KeyConfig) Key {
	prefix := fmt.Sprintf("%s:%s", keyType, id)
	if b.urnPrefix != "" {
		prefix = fmt.Sprintf("%s:%s", b.urnPrefix, prefix)
	}
	if invalidationTracking {
		prefix = "{" + prefix + "}"
	}

	var argsStr string
	if len(args) > 0 {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprintf("%s=%s", a.Name, a.Value)
		}
		argsStr = "?" + strings.Join(parts, "&")
	}

	urn := fmt.Sprintf("%s%s#%s", prefix, argsStr, useCase)

	return Key{
		KeyType:              keyType,
		ID:                   id,
		UseCase:              useCase,
		Args:                 append([]Arg(nil), args...),
		InvalidationTracking: invalidationTracking,
		DefaultConfig:        defaultConfig,
		Prefix:               prefix,
		URN:                  urn,
	}
}
