package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

type fakeRepoDB struct {
	principals  map[string]*entity.Principal
	credentials map[string]string
	err         error
}

func (f *fakeRepoDB) GetPrincipal(ctx context.Context, username string) (*entity.Principal, error) {
	if f.err != nil {
		return nil, f.err
	}

	p, ok := f.principals[username]
	if !ok {
		return nil, goerror.ErrNotFound
	}

	return p, nil
}

func (f *fakeRepoDB) GetCredential(ctx context.Context, username string) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	h, ok := f.credentials[username]
	if !ok {
		return "", goerror.ErrNotFound
	}

	return h, nil
}

type fakeSessions struct {
	mu      sync.Mutex
	records map[string]otp.Record

	generateErr error
	lastRecord  otp.Record
	invalidated []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{records: map[string]otp.Record{}}
}

func (f *fakeSessions) Generate(principal string, length int, timeout time.Duration, charset otp.Charset) (otp.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.generateErr != nil {
		return otp.Record{}, f.generateErr
	}

	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	rec := otp.NewRecord("482913", now, timeout)
	f.records[principal] = rec
	f.lastRecord = rec

	return rec, nil
}

func (f *fakeSessions) CheckAndConsume(principal, candidate string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[principal]
	if !ok || rec.Code != candidate {
		return false
	}

	delete(f.records, principal)

	return true
}

func (f *fakeSessions) Invalidate(principal string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.records, principal)
	f.invalidated = append(f.invalidated, principal)
}

type fakeResolver struct {
	policy        *entity.Policy
	resolveErr    error
	missingAction entity.MissingAction
	target        entity.DeliveryTarget
	hasTarget     bool
}

func (f *fakeResolver) Resolve(ctx context.Context, p *entity.Principal) (*entity.Policy, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}

	return f.policy, nil
}

func (f *fakeResolver) MissingAction() entity.MissingAction {
	if f.missingAction == entity.MissingActionUnknown {
		return entity.MissingActionBlock
	}

	return f.missingAction
}

func (f *fakeResolver) DeliveryTarget(p *entity.Principal, ch entity.Channel) (entity.DeliveryTarget, bool) {
	return f.target, f.hasTarget
}

type fakeDispatcher struct {
	mu    sync.Mutex
	err   error
	sent  []otp.Record
	calls int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, principal string, target entity.DeliveryTarget, rec otp.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, rec)

	return nil
}

type fakeMessaging struct {
	mu       sync.Mutex
	issued   []ChallengeIssuedEvent
	resolved []ChallengeResolvedEvent
}

func (f *fakeMessaging) PublishChallengeIssued(ctx context.Context, msg ChallengeIssuedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.issued = append(f.issued, msg)

	return nil
}

func (f *fakeMessaging) PublishChallengeResolved(ctx context.Context, msg ChallengeResolvedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resolved = append(f.resolved, msg)

	return nil
}

type fakeJWT struct {
	token string
	err   error
}

func (f *fakeJWT) Generate(principal, email string) (string, error) {
	return f.token, f.err
}

func (f *fakeJWT) Verify(tokenStr string) (jwt.Claims, error) {
	return jwt.Claims{}, errors.New("not implemented")
}

type fixedNumberID struct{ id int64 }

func (f fixedNumberID) Generate() int64 { return f.id }

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

func newTestEnforcer(t *testing.T) *casbin.Enforcer {
	t.Helper()

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		t.Fatalf("failed to build casbin model: %v", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		t.Fatalf("failed to build casbin enforcer: %v", err)
	}

	if _, err := e.AddPolicy("role:operator", "stepup", "write"); err != nil {
		t.Fatalf("failed to add casbin policy: %v", err)
	}
	if _, err := e.AddPolicy("role:operator", "stepup", "read"); err != nil {
		t.Fatalf("failed to add casbin policy: %v", err)
	}
	if _, err := e.AddGroupingPolicy("admin", "role:operator"); err != nil {
		t.Fatalf("failed to add casbin grouping: %v", err)
	}

	return e
}

// fixture bundles a Usecase with the fakes behind it so tests can both drive
// and observe it.
type fixture struct {
	uc         *Usecase
	repo       *fakeRepoDB
	sessions   *fakeSessions
	resolver   *fakeResolver
	dispatcher *fakeDispatcher
	messaging  *fakeMessaging
	goroutine  *goroutine.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	f := &fixture{
		repo: &fakeRepoDB{
			principals:  map[string]*entity.Principal{},
			credentials: map[string]string{},
		},
		sessions: newFakeSessions(),
		resolver: &fakeResolver{
			policy:    &entity.Policy{Channel: entity.ChannelEmail, Timeout: 5 * time.Minute, Length: 6, Charset: otp.CharsetNumeric},
			target:    entity.DeliveryTarget{Channel: entity.ChannelEmail, Emails: []string{"alice@example.com"}},
			hasTarget: true,
		},
		dispatcher: &fakeDispatcher{},
		messaging:  &fakeMessaging{},
		goroutine:  goroutine.NewManager(4),
	}

	f.uc = New(Dependency{
		RepoDB:        f.repo,
		RepoMessaging: f.messaging,
		Sessions:      f.sessions,
		Resolver:      f.resolver,
		Dispatcher:    f.dispatcher,
		Validator:     v,
		UID:           fixedNumberID{id: 7},
		Bcrypt:        hash.NewBcrypt(4, ""),
		Clock:         clock.NewManual(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)),
		JWT:           &fakeJWT{token: "signed-token"},
		Instrument:    instrument.NewNoop(),
		Enforcer:      newTestEnforcer(t),
		Goroutine:     f.goroutine,
	})

	f.repo.principals["alice"] = &entity.Principal{
		ID:         "alice",
		Attributes: map[string]string{entity.AttrPrimaryEmail: "alice@example.com"},
	}

	return f
}

// settle waits for the fire-and-forget publishes scheduled so far.
func (f *fixture) settle(t *testing.T) {
	t.Helper()

	if err := f.goroutine.Wait(); err != nil {
		t.Fatalf("background publish failed: %v", err)
	}
}

func (f *fixture) resolvedOutcomes() []string {
	f.messaging.mu.Lock()
	defer f.messaging.mu.Unlock()

	outcomes := make([]string, 0, len(f.messaging.resolved))
	for _, msg := range f.messaging.resolved {
		outcomes = append(outcomes, msg.Outcome)
	}

	return outcomes
}

func TestVerifyUser(t *testing.T) {

	ctx := context.Background()

	t.Run("MissingPrincipal", func(t *testing.T) {

		// Arrange
		f := newFixture(t)

		// Act
		_, err := f.uc.VerifyUser(ctx, VerifyUserInput{})

		// Assert
		if err == nil {
			t.Fatalf("expected validation error for empty principal")
		}
	})

	t.Run("UnknownPrincipal", func(t *testing.T) {

		// Arrange
		f := newFixture(t)

		// Act
		_, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "ghost"})

		// Assert
		if err == nil {
			t.Fatalf("expected error for unknown principal")
		}
	})

	t.Run("DisabledPolicyPassesThrough", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.resolver.policy = &entity.Policy{Disabled: true}

		// Act
		out, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"})

		// Assert
		if err != nil {
			t.Fatalf("VerifyUser returned error: %v", err)
		}
		if out.Status != entity.VerifyStatusVerified {
			t.Fatalf("status = %s, want Verified for disabled policy", out.Status)
		}
		if f.dispatcher.calls != 0 {
			t.Fatalf("disabled policy must not dispatch anything")
		}
	})

	t.Run("ResolveFailureFailsClosed", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.resolver.resolveErr = &entity.ConfigurationError{
			Attribute: entity.AttrTimeout, Value: "soon", Source: "user", Err: errors.New("bad syntax"),
		}

		// Act
		_, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"})

		// Assert: a config typo must never let the login through.
		if err == nil {
			t.Fatalf("expected resolver failure to surface as an error")
		}
	})

	t.Run("FirstTurnIssuesChallenge", func(t *testing.T) {

		// Arrange
		f := newFixture(t)

		// Act
		out, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"})
		f.settle(t)

		// Assert
		if err != nil {
			t.Fatalf("VerifyUser returned error: %v", err)
		}
		if out.Status != entity.VerifyStatusNeedsInput {
			t.Fatalf("status = %s, want NeedsInput", out.Status)
		}
		if out.FieldName != entity.ChallengeFieldName {
			t.Fatalf("field name = %q, want %q", out.FieldName, entity.ChallengeFieldName)
		}
		if len(f.dispatcher.sent) != 1 || f.dispatcher.sent[0].Code != f.sessions.lastRecord.Code {
			t.Fatalf("generated record was not handed to the dispatcher")
		}
		if len(f.messaging.issued) != 1 || f.messaging.issued[0].ChallengeID != 7 {
			t.Fatalf("issued events = %+v, want one with challenge id 7", f.messaging.issued)
		}
	})

	t.Run("DispatchFailureInvalidatesChallenge", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.dispatcher.err = errors.New("smtp down")

		// Act
		_, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"})

		// Assert: a code nobody received must not stay redeemable.
		if err == nil {
			t.Fatalf("expected delivery failure to surface as an error")
		}
		if len(f.sessions.invalidated) != 1 || f.sessions.invalidated[0] != "alice" {
			t.Fatalf("undelivered challenge was not invalidated")
		}
	})

	t.Run("MissingDeliveryDataBlocks", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.resolver.hasTarget = false

		// Act
		out, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"})

		// Assert
		if err != nil {
			t.Fatalf("VerifyUser returned error: %v", err)
		}
		if out.Status != entity.VerifyStatusRejected {
			t.Fatalf("status = %s, want Rejected under BLOCK", out.Status)
		}
		if out.Reason == "" {
			t.Fatalf("rejection must carry an operator-facing reason")
		}
	})

	t.Run("MissingDeliveryDataAllows", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.resolver.hasTarget = false
		f.resolver.missingAction = entity.MissingActionAllow

		// Act
		out, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"})

		// Assert
		if err != nil {
			t.Fatalf("VerifyUser returned error: %v", err)
		}
		if out.Status != entity.VerifyStatusVerified {
			t.Fatalf("status = %s, want Verified under ALLOW", out.Status)
		}
	})

	t.Run("SubmittedCorrectCodeVerifies", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		if _, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"}); err != nil {
			t.Fatalf("challenge turn returned error: %v", err)
		}

		// Act
		out, err := f.uc.VerifyUser(ctx, VerifyUserInput{
			Principal: "alice",
			Response:  f.sessions.lastRecord.Code,
			Submitted: true,
		})
		f.settle(t)

		// Assert
		if err != nil {
			t.Fatalf("VerifyUser returned error: %v", err)
		}
		if out.Status != entity.VerifyStatusVerified {
			t.Fatalf("status = %s, want Verified", out.Status)
		}

		outcomes := f.resolvedOutcomes()
		if len(outcomes) != 1 || outcomes[0] != "verified" {
			t.Fatalf("resolved outcomes = %v, want [verified]", outcomes)
		}
	})

	t.Run("SubmittedWrongCodeRejected", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		if _, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"}); err != nil {
			t.Fatalf("challenge turn returned error: %v", err)
		}

		// Act
		out, err := f.uc.VerifyUser(ctx, VerifyUserInput{
			Principal: "alice",
			Response:  "000000",
			Submitted: true,
		})
		f.settle(t)

		// Assert
		if err != nil {
			t.Fatalf("VerifyUser returned error: %v", err)
		}
		if out.Status != entity.VerifyStatusRejected {
			t.Fatalf("status = %s, want Rejected", out.Status)
		}

		// The outstanding record survives a wrong guess.
		if !f.sessions.CheckAndConsume("alice", f.sessions.lastRecord.Code) {
			t.Fatalf("record must remain consumable after a wrong guess")
		}

		outcomes := f.resolvedOutcomes()
		if len(outcomes) != 1 || outcomes[0] != "rejected" {
			t.Fatalf("resolved outcomes = %v, want [rejected]", outcomes)
		}
	})

	t.Run("EmptySubmissionIsAGuessNotAReissue", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		if _, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"}); err != nil {
			t.Fatalf("challenge turn returned error: %v", err)
		}
		before := f.dispatcher.calls

		// Act
		out, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice", Submitted: true})

		// Assert
		if err != nil {
			t.Fatalf("VerifyUser returned error: %v", err)
		}
		if out.Status != entity.VerifyStatusRejected {
			t.Fatalf("status = %s, want Rejected for an empty submission", out.Status)
		}
		if f.dispatcher.calls != before {
			t.Fatalf("an empty submission must not trigger a second delivery")
		}
	})
}

func TestLogin(t *testing.T) {

	ctx := context.Background()

	hashedSecret := func(t *testing.T) string {
		t.Helper()
		h, err := hash.NewBcrypt(4, "").Hash("s3cret")
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
		return string(h)
	}

	t.Run("WrongPassword", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.repo.credentials["alice"] = hashedSecret(t)

		// Act
		_, err := f.uc.Login(ctx, LoginInput{Username: "alice", Password: "nope"})

		// Assert
		if err == nil {
			t.Fatalf("expected error for wrong password")
		}
		if f.dispatcher.calls != 0 {
			t.Fatalf("failed primary auth must not issue a challenge")
		}
	})

	t.Run("UnknownUser", func(t *testing.T) {

		// Arrange
		f := newFixture(t)

		// Act
		_, err := f.uc.Login(ctx, LoginInput{Username: "ghost", Password: "s3cret"})

		// Assert
		if err == nil {
			t.Fatalf("expected error for unknown user")
		}
	})

	t.Run("FirstTurnReturnsChallenge", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.repo.credentials["alice"] = hashedSecret(t)

		// Act
		out, err := f.uc.Login(ctx, LoginInput{Username: "alice", Password: "s3cret"})

		// Assert
		if err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
		if !out.ChallengePending || out.FieldName != entity.ChallengeFieldName {
			t.Fatalf("output = %+v, want a pending challenge", out)
		}
		if out.AccessToken != "" {
			t.Fatalf("no token may be issued before verification")
		}
	})

	t.Run("SecondTurnIssuesToken", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.repo.credentials["alice"] = hashedSecret(t)
		if _, err := f.uc.Login(ctx, LoginInput{Username: "alice", Password: "s3cret"}); err != nil {
			t.Fatalf("challenge turn returned error: %v", err)
		}

		// Act
		out, err := f.uc.Login(ctx, LoginInput{
			Username:          "alice",
			Password:          "s3cret",
			Passcode:          f.sessions.lastRecord.Code,
			PasscodeSubmitted: true,
		})

		// Assert
		if err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
		if out.ChallengePending || out.AccessToken != "signed-token" {
			t.Fatalf("output = %+v, want an access token", out)
		}
	})

	t.Run("DisabledPolicySkipsChallenge", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.repo.credentials["alice"] = hashedSecret(t)
		f.resolver.policy = &entity.Policy{Disabled: true}

		// Act
		out, err := f.uc.Login(ctx, LoginInput{Username: "alice", Password: "s3cret"})

		// Assert
		if err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
		if out.ChallengePending || out.AccessToken == "" {
			t.Fatalf("output = %+v, want a token without a challenge", out)
		}
	})
}

func TestOnAuthenticationSuccess(t *testing.T) {

	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.uc.VerifyUser(ctx, VerifyUserInput{Principal: "alice"}); err != nil {
		t.Fatalf("challenge turn returned error: %v", err)
	}

	// Act
	err := f.uc.OnAuthenticationSuccess(ctx, AuthSuccessInput{Principal: "alice", SessionID: "sess-1"})
	f.settle(t)

	// Assert
	if err != nil {
		t.Fatalf("OnAuthenticationSuccess returned error: %v", err)
	}
	if f.sessions.CheckAndConsume("alice", f.sessions.lastRecord.Code) {
		t.Fatalf("leftover code must not be redeemable after session issuance")
	}

	outcomes := f.resolvedOutcomes()
	if len(outcomes) != 1 || outcomes[0] != "invalidated" {
		t.Fatalf("resolved outcomes = %v, want [invalidated]", outcomes)
	}
}

func TestInvalidatePrincipal(t *testing.T) {

	operatorCtx := func() context.Context {
		clm := jwt.Claims{}
		clm.Subject = "admin"
		return jwt.SetAuth(context.Background(), clm)
	}

	t.Run("RequiresAuthentication", func(t *testing.T) {

		// Arrange
		f := newFixture(t)

		// Act
		err := f.uc.InvalidatePrincipal(context.Background(), InvalidatePrincipalInput{Principal: "alice"})

		// Assert
		if err == nil {
			t.Fatalf("expected error for anonymous caller")
		}
	})

	t.Run("RequiresWritePermission", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		clm := jwt.Claims{}
		clm.Subject = "alice"
		ctx := jwt.SetAuth(context.Background(), clm)

		// Act
		err := f.uc.InvalidatePrincipal(ctx, InvalidatePrincipalInput{Principal: "alice"})

		// Assert
		if err == nil {
			t.Fatalf("expected error for caller without the write permission")
		}
	})

	t.Run("OperatorDiscardsChallenge", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		if _, err := f.uc.VerifyUser(context.Background(), VerifyUserInput{Principal: "alice"}); err != nil {
			t.Fatalf("challenge turn returned error: %v", err)
		}

		// Act
		err := f.uc.InvalidatePrincipal(operatorCtx(), InvalidatePrincipalInput{Principal: "alice"})

		// Assert
		if err != nil {
			t.Fatalf("InvalidatePrincipal returned error: %v", err)
		}
		if f.sessions.CheckAndConsume("alice", f.sessions.lastRecord.Code) {
			t.Fatalf("discarded code must not be redeemable")
		}
	})
}

func TestPolicyDetail(t *testing.T) {

	operatorCtx := func() context.Context {
		clm := jwt.Claims{}
		clm.Subject = "admin"
		return jwt.SetAuth(context.Background(), clm)
	}

	t.Run("RequiresAuthentication", func(t *testing.T) {

		// Arrange
		f := newFixture(t)

		// Act
		_, err := f.uc.PolicyDetail(context.Background(), PolicyDetailInput{Principal: "alice"})

		// Assert
		if err == nil {
			t.Fatalf("expected error for anonymous caller")
		}
	})

	t.Run("ReturnsEffectivePolicy", func(t *testing.T) {

		// Arrange
		f := newFixture(t)

		// Act
		out, err := f.uc.PolicyDetail(operatorCtx(), PolicyDetailInput{Principal: "alice"})

		// Assert
		if err != nil {
			t.Fatalf("PolicyDetail returned error: %v", err)
		}
		if out.Channel != entity.ChannelEmail || out.Length != 6 || out.Timeout != 5*time.Minute {
			t.Fatalf("output = %+v, want the resolved policy", out)
		}
		if !out.HasDeliveryTarget {
			t.Fatalf("fixture principal has an email, HasDeliveryTarget should be true")
		}
	})

	t.Run("MalformedPolicySurfacesAsInvalidFormat", func(t *testing.T) {

		// Arrange
		f := newFixture(t)
		f.resolver.resolveErr = &entity.ConfigurationError{
			Attribute: entity.AttrCharset, Value: "hex", Source: "group:staff", Err: errors.New("unknown charset"),
		}

		// Act
		_, err := f.uc.PolicyDetail(operatorCtx(), PolicyDetailInput{Principal: "alice"})

		// Assert
		if err == nil {
			t.Fatalf("expected malformed policy to surface as an error")
		}
	})
}
