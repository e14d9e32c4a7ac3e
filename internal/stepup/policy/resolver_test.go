package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

type stubDirectory struct {
	groups map[string]map[string]string
	err    error
}

func (d *stubDirectory) GroupAttributes(ctx context.Context, group string) (map[string]string, error) {
	if d.err != nil {
		return nil, d.err
	}

	attrs, ok := d.groups[group]
	if !ok {
		return map[string]string{}, nil
	}

	return attrs, nil
}

// stubConfig backs the resolver's default tier; only the getters the
// resolver touches are implemented.
type stubConfig struct {
	config.Config

	strings map[string]string
	seconds map[string]time.Duration
	ints    map[string]int
}

func (c *stubConfig) GetString(key string) string        { return c.strings[key] }
func (c *stubConfig) GetSecond(key string) time.Duration { return c.seconds[key] }
func (c *stubConfig) GetInt(key string) int              { return c.ints[key] }

func newTestResolver(dir *stubDirectory, cfg *stubConfig) *Resolver {
	if dir == nil {
		dir = &stubDirectory{}
	}
	if cfg == nil {
		cfg = &stubConfig{}
	}

	return NewResolver(dir, cfg)
}

func principalWith(attrs map[string]string, groups ...string) *entity.Principal {
	return &entity.Principal{ID: "alice", Groups: groups, Attributes: attrs}
}

func TestResolverPrecedence(t *testing.T) {

	ctx := context.Background()

	t.Run("UserBeatsGroupBeatsDefault", func(t *testing.T) {

		// Arrange
		dir := &stubDirectory{groups: map[string]map[string]string{
			"staff": {entity.AttrTimeout: "600", entity.AttrLength: "8"},
		}}
		cfg := &stubConfig{
			seconds: map[string]time.Duration{"otp.default_timeout_seconds": 120 * time.Second},
			ints:    map[string]int{"otp.length": 4},
		}
		p := principalWith(map[string]string{entity.AttrTimeout: "60"}, "staff")
		r := newTestResolver(dir, cfg)

		// Act
		timeout, err := r.Timeout(ctx, p)
		if err != nil {
			t.Fatalf("Timeout returned error: %v", err)
		}
		length, err := r.Length(ctx, p)
		if err != nil {
			t.Fatalf("Length returned error: %v", err)
		}

		// Assert: user attribute wins over group, group wins over config.
		if timeout != 60*time.Second {
			t.Fatalf("timeout = %v, want 60s from user attribute", timeout)
		}
		if length != 8 {
			t.Fatalf("length = %d, want 8 from group attribute", length)
		}
	})

	t.Run("GroupsConsultedInLexicographicOrder", func(t *testing.T) {

		// Arrange: membership order says "zeta" first, but "alpha" must win.
		dir := &stubDirectory{groups: map[string]map[string]string{
			"zeta":  {entity.AttrLength: "10"},
			"alpha": {entity.AttrLength: "4"},
		}}
		p := principalWith(nil, "zeta", "alpha", "zeta")
		r := newTestResolver(dir, nil)

		// Act
		length, err := r.Length(ctx, p)

		// Assert
		if err != nil {
			t.Fatalf("Length returned error: %v", err)
		}
		if length != 4 {
			t.Fatalf("length = %d, want 4 from group alpha", length)
		}
	})

	t.Run("ConfigBeatsHardDefault", func(t *testing.T) {

		// Arrange
		cfg := &stubConfig{strings: map[string]string{"otp.charset": "all"}}
		r := newTestResolver(nil, cfg)

		// Act
		cs, err := r.Charset(ctx, principalWith(nil))

		// Assert
		if err != nil {
			t.Fatalf("Charset returned error: %v", err)
		}
		if cs != otp.CharsetAll {
			t.Fatalf("charset = %s, want ALL from configuration", cs)
		}
	})

	t.Run("HardDefaults", func(t *testing.T) {

		// Arrange
		r := newTestResolver(nil, nil)
		p := principalWith(nil)

		// Act
		pol, err := r.Resolve(ctx, p)

		// Assert
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if pol.Channel != DefaultChannel || pol.Timeout != DefaultTimeout ||
			pol.Length != DefaultLength || pol.Charset != DefaultCharset {
			t.Fatalf("policy = %+v, want system defaults", pol)
		}
	})

	t.Run("DirectoryErrorPropagates", func(t *testing.T) {

		// Arrange
		dir := &stubDirectory{err: errors.New("directory down")}
		r := newTestResolver(dir, nil)

		// Act
		_, err := r.Resolve(ctx, principalWith(nil, "staff"))

		// Assert
		if err == nil {
			t.Fatalf("expected directory error to propagate")
		}
	})
}

func TestResolverDisabled(t *testing.T) {

	ctx := context.Background()

	t.Run("UserAttribute", func(t *testing.T) {

		// Arrange
		r := newTestResolver(nil, nil)
		p := principalWith(map[string]string{entity.AttrDisabled: entity.TruthValue})

		// Act
		pol, err := r.Resolve(ctx, p)

		// Assert: a disabled policy short-circuits attribute resolution.
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if !pol.Disabled {
			t.Fatalf("policy should be disabled")
		}
		if pol.Channel != entity.ChannelUnknown {
			t.Fatalf("disabled policy should leave remaining attributes zero")
		}
	})

	t.Run("GroupAttribute", func(t *testing.T) {

		// Arrange
		dir := &stubDirectory{groups: map[string]map[string]string{
			"exempt": {entity.AttrDisabled: "true"},
		}}
		r := newTestResolver(dir, nil)

		// Act
		disabled, err := r.Disabled(ctx, principalWith(nil, "exempt"))

		// Assert
		if err != nil {
			t.Fatalf("Disabled returned error: %v", err)
		}
		if !disabled {
			t.Fatalf("group-level otp-disabled should apply")
		}
	})

	t.Run("MalformedValueFailsClosed", func(t *testing.T) {

		// Arrange
		r := newTestResolver(nil, nil)
		p := principalWith(map[string]string{entity.AttrDisabled: "yes please"})

		// Act
		_, err := r.Disabled(ctx, p)

		// Assert
		var cerr *entity.ConfigurationError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
		if cerr.Attribute != entity.AttrDisabled || cerr.Source != "user" {
			t.Fatalf("error = %+v, want user-sourced otp-disabled", cerr)
		}
	})
}

func TestResolverMalformedAttributes(t *testing.T) {

	ctx := context.Background()

	cases := []struct {
		name  string
		attrs map[string]string
		act   func(r *Resolver, p *entity.Principal) error
		attr  string
	}{
		{
			name:  "Channel",
			attrs: map[string]string{entity.AttrChannel: "carrier-pigeon"},
			act: func(r *Resolver, p *entity.Principal) error {
				_, err := r.Channel(ctx, p)
				return err
			},
			attr: entity.AttrChannel,
		},
		{
			name:  "TimeoutNotANumber",
			attrs: map[string]string{entity.AttrTimeout: "soon"},
			act: func(r *Resolver, p *entity.Principal) error {
				_, err := r.Timeout(ctx, p)
				return err
			},
			attr: entity.AttrTimeout,
		},
		{
			name:  "TimeoutNonPositive",
			attrs: map[string]string{entity.AttrTimeout: "0"},
			act: func(r *Resolver, p *entity.Principal) error {
				_, err := r.Timeout(ctx, p)
				return err
			},
			attr: entity.AttrTimeout,
		},
		{
			name:  "LengthNonPositive",
			attrs: map[string]string{entity.AttrLength: "-3"},
			act: func(r *Resolver, p *entity.Principal) error {
				_, err := r.Length(ctx, p)
				return err
			},
			attr: entity.AttrLength,
		},
		{
			name:  "Charset",
			attrs: map[string]string{entity.AttrCharset: "hex"},
			act: func(r *Resolver, p *entity.Principal) error {
				_, err := r.Charset(ctx, p)
				return err
			},
			attr: entity.AttrCharset,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {

			// Arrange
			r := newTestResolver(nil, nil)

			// Act
			err := c.act(r, principalWith(c.attrs))

			// Assert
			var cerr *entity.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cerr.Attribute != c.attr {
				t.Fatalf("error names attribute %q, want %q", cerr.Attribute, c.attr)
			}
		})
	}
}

func TestResolverMissingAction(t *testing.T) {

	t.Run("DefaultsToBlock", func(t *testing.T) {

		r := newTestResolver(nil, nil)

		if got := r.MissingAction(); got != entity.MissingActionBlock {
			t.Fatalf("MissingAction = %s, want BLOCK", got)
		}
	})

	t.Run("ConfiguredAllow", func(t *testing.T) {

		cfg := &stubConfig{strings: map[string]string{"otp.missing_action": "allow"}}
		r := newTestResolver(nil, cfg)

		if got := r.MissingAction(); got != entity.MissingActionAllow {
			t.Fatalf("MissingAction = %s, want ALLOW", got)
		}
	})
}

func TestResolverDeliveryTarget(t *testing.T) {

	r := newTestResolver(nil, nil)

	t.Run("EmailCollectsPrimaryAndAlternate", func(t *testing.T) {

		// Arrange
		p := principalWith(map[string]string{
			entity.AttrPrimaryEmail: "alice@example.com",
			entity.AttrEmail:        "alice@backup.example.com",
		})

		// Act
		target, ok := r.DeliveryTarget(p, entity.ChannelEmail)

		// Assert
		if !ok {
			t.Fatalf("expected delivery data to be present")
		}
		if len(target.Emails) != 2 || target.Emails[0] != "alice@example.com" {
			t.Fatalf("emails = %v, want primary first then alternate", target.Emails)
		}
	})

	t.Run("EmailMissing", func(t *testing.T) {

		if _, ok := r.DeliveryTarget(principalWith(nil), entity.ChannelEmail); ok {
			t.Fatalf("principal without addresses must report missing data")
		}
	})

	t.Run("SMSUsesPhone", func(t *testing.T) {

		// Arrange
		p := principalWith(map[string]string{entity.AttrPhone: "+15551234567"})

		// Act
		target, ok := r.DeliveryTarget(p, entity.ChannelSMS)

		// Assert
		if !ok || target.Phone != "+15551234567" {
			t.Fatalf("target = %+v, want the phone attribute", target)
		}
	})
}
