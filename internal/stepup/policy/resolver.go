// Package policy computes the effective one-time-passcode policy for a
// principal from three tiers: the principal's own attributes, the attributes
// of its groups, and the system-wide defaults.
package policy

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

// System defaults, used when neither the principal nor any of its groups nor
// the configuration file define an attribute.
const (
	DefaultChannel = entity.ChannelEmail
	DefaultTimeout = 300 * time.Second
	DefaultLength  = 6
	DefaultCharset = otp.CharsetNumeric
)

// Directory supplies group attribute maps. Group lookups for unknown names
// must return an empty map, not an error.
type Directory interface {
	GroupAttributes(ctx context.Context, group string) (map[string]string, error)
}

// Resolver resolves policy attributes with user > group > default precedence.
//
// Groups are always consulted in lexicographic order of their identifiers so
// that two groups defining the same attribute resolve deterministically.
type Resolver struct {
	dir Directory
	cfg config.Config
}

// NewResolver builds a Resolver over the given directory and configuration.
func NewResolver(dir Directory, cfg config.Config) *Resolver {
	return &Resolver{dir: dir, cfg: cfg}
}

// resolved is one attribute value with the tier it came from, for error
// reporting.
type resolved struct {
	value  string
	source string
}

func (r *Resolver) lookup(ctx context.Context, p *entity.Principal, key string) (*resolved, error) {
	if v, ok := p.Attr(key); ok {
		return &resolved{value: v, source: "user"}, nil
	}

	groups := lo.Uniq(slices.Clone(p.Groups))
	slices.Sort(groups)

	for _, g := range groups {
		attrs, err := r.dir.GroupAttributes(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("stepup: read attributes of group %q: %w", g, err)
		}

		if v, ok := attrs[key]; ok && v != "" {
			return &resolved{value: v, source: "group:" + g}, nil
		}
	}

	return nil, nil
}

// Disabled reports whether the step-up requirement is switched off for the
// principal, either on the user or on any of its groups.
func (r *Resolver) Disabled(ctx context.Context, p *entity.Principal) (bool, error) {
	rv, err := r.lookup(ctx, p, entity.AttrDisabled)
	if err != nil {
		return false, err
	}
	if rv == nil {
		return false, nil
	}

	disabled, perr := strconv.ParseBool(rv.value)
	if perr != nil {
		return false, &entity.ConfigurationError{
			Attribute: entity.AttrDisabled, Value: rv.value, Source: rv.source, Err: perr,
		}
	}

	return disabled, nil
}

// Channel resolves the delivery channel for the principal.
func (r *Resolver) Channel(ctx context.Context, p *entity.Principal) (entity.Channel, error) {
	rv, err := r.lookup(ctx, p, entity.AttrChannel)
	if err != nil {
		return entity.ChannelUnknown, err
	}

	if rv == nil {
		raw := r.cfg.GetString("otp.default_channel")
		if raw == "" {
			return DefaultChannel, nil
		}
		rv = &resolved{value: raw, source: "default"}
	}

	ch := entity.ChannelFromString(rv.value)
	if ch == entity.ChannelUnknown {
		return entity.ChannelUnknown, &entity.ConfigurationError{
			Attribute: entity.AttrChannel, Value: rv.value, Source: rv.source,
			Err: fmt.Errorf("not one of EMAIL, SMS"),
		}
	}

	return ch, nil
}

// Timeout resolves the passcode validity window for the principal.
func (r *Resolver) Timeout(ctx context.Context, p *entity.Principal) (time.Duration, error) {
	rv, err := r.lookup(ctx, p, entity.AttrTimeout)
	if err != nil {
		return 0, err
	}

	if rv == nil {
		if d := r.cfg.GetSecond("otp.default_timeout_seconds"); d > 0 {
			return d, nil
		}
		return DefaultTimeout, nil
	}

	secs, perr := strconv.Atoi(rv.value)
	if perr != nil || secs < 1 {
		if perr == nil {
			perr = fmt.Errorf("must be a positive number of seconds")
		}
		return 0, &entity.ConfigurationError{
			Attribute: entity.AttrTimeout, Value: rv.value, Source: rv.source, Err: perr,
		}
	}

	return time.Duration(secs) * time.Second, nil
}

// Length resolves how many characters the passcode has.
func (r *Resolver) Length(ctx context.Context, p *entity.Principal) (int, error) {
	rv, err := r.lookup(ctx, p, entity.AttrLength)
	if err != nil {
		return 0, err
	}

	if rv == nil {
		if n := r.cfg.GetInt("otp.length"); n > 0 {
			return n, nil
		}
		return DefaultLength, nil
	}

	n, perr := strconv.Atoi(rv.value)
	if perr != nil || n < 1 {
		if perr == nil {
			perr = fmt.Errorf("must be at least 1")
		}
		return 0, &entity.ConfigurationError{
			Attribute: entity.AttrLength, Value: rv.value, Source: rv.source, Err: perr,
		}
	}

	return n, nil
}

// Charset resolves the character classes the passcode draws from.
func (r *Resolver) Charset(ctx context.Context, p *entity.Principal) (otp.Charset, error) {
	rv, err := r.lookup(ctx, p, entity.AttrCharset)
	if err != nil {
		return otp.CharsetUnknown, err
	}

	if rv == nil {
		raw := r.cfg.GetString("otp.charset")
		if raw == "" {
			return DefaultCharset, nil
		}
		rv = &resolved{value: raw, source: "default"}
	}

	cs := otp.CharsetFromString(rv.value)
	if cs == otp.CharsetUnknown {
		return otp.CharsetUnknown, &entity.ConfigurationError{
			Attribute: entity.AttrCharset, Value: rv.value, Source: rv.source,
			Err: fmt.Errorf("not one of NUMERIC, ALPHA, ALPHANUMERIC, ALL"),
		}
	}

	return cs, nil
}

// MissingAction returns the system-wide behavior for principals that lack
// delivery data: block the login (default) or allow it through.
func (r *Resolver) MissingAction() entity.MissingAction {
	if ma := entity.MissingActionFromString(r.cfg.GetString("otp.missing_action")); ma != entity.MissingActionUnknown {
		return ma
	}

	return entity.MissingActionBlock
}

// Resolve computes the full effective policy for one authentication attempt.
// A disabled policy short-circuits; the remaining attributes are left zero.
func (r *Resolver) Resolve(ctx context.Context, p *entity.Principal) (*entity.Policy, error) {
	disabled, err := r.Disabled(ctx, p)
	if err != nil {
		return nil, err
	}
	if disabled {
		return &entity.Policy{Disabled: true}, nil
	}

	channel, err := r.Channel(ctx, p)
	if err != nil {
		return nil, err
	}

	timeout, err := r.Timeout(ctx, p)
	if err != nil {
		return nil, err
	}

	length, err := r.Length(ctx, p)
	if err != nil {
		return nil, err
	}

	charset, err := r.Charset(ctx, p)
	if err != nil {
		return nil, err
	}

	return &entity.Policy{
		Channel: channel,
		Timeout: timeout,
		Length:  length,
		Charset: charset,
	}, nil
}

// DeliveryTarget collects the principal's delivery data for the channel. The
// second return value reports whether the required data is present.
func (r *Resolver) DeliveryTarget(p *entity.Principal, ch entity.Channel) (entity.DeliveryTarget, bool) {
	target := entity.DeliveryTarget{Channel: ch}

	switch ch {
	case entity.ChannelEmail:
		if v, ok := p.Attr(entity.AttrPrimaryEmail); ok {
			target.Emails = append(target.Emails, v)
		}
		if v, ok := p.Attr(entity.AttrEmail); ok {
			target.Emails = append(target.Emails, v)
		}
		return target, len(target.Emails) > 0

	case entity.ChannelSMS:
		v, ok := p.Attr(entity.AttrPhone)
		target.Phone = v
		return target, ok

	default:
		return target, false
	}
}
