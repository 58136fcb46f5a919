package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/federation"
	"github.com/ZargorNET/sponsormanager/internal/repository"
	"github.com/ZargorNET/sponsormanager/internal/telemetry"
	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "sponsormanager/iam"

const (
	methodDirectory = "directory"
	methodFederated = "federated"
)

// iamService implements the Service interface.
type iamService struct {
	deps ServiceDependencies

	clock    clock.Clock
	log      *zap.SugaredLogger
	tokenTTL time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewIAMService creates a new IAM service.
func NewIAMService(deps ServiceDependencies) (Service, error) {
	if deps.Codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if deps.Roles == nil {
		return nil, fmt.Errorf("role directory is required")
	}
	if deps.Broker != nil && deps.Cache == nil {
		return nil, fmt.Errorf("federated login requires a session cache")
	}

	s := &iamService{
		deps:     deps,
		clock:    deps.Clock,
		log:      deps.Logger,
		tokenTTL: deps.TokenTTL,
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = DefaultTokenTTL
	}
	return s, nil
}

func (s *iamService) Authenticate(headerValue string) (auth.Principal, error) {
	return authenticateBearer(s.deps.Codec, headerValue)
}

func (s *iamService) LoginDirectory(ctx context.Context, email, password string) (token string, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.LoginDirectory",
		attribute.String(telemetry.AttrAuthMethod, methodDirectory),
	)
	defer span.End()
	defer func() {
		s.record(ctx, methodDirectory, err)
		telemetry.RecordError(span, err)
	}()

	email = strings.TrimSpace(email)
	if email == "" {
		return "", newError(KindBadRequest, "email is required", nil)
	}

	subject, err := s.deps.Directory.Lookup(ctx, email)
	if err != nil {
		return "", internal(fmt.Errorf("lookup %s: %w", email, err))
	}
	if subject == nil {
		return "", newError(KindNotFound, msgUserNotFound, nil)
	}

	ok, err := s.deps.Directory.VerifyCredentials(ctx, *subject, password)
	if err != nil {
		return "", internal(fmt.Errorf("verify credentials for %s: %w", subject.DN, err))
	}
	if !ok {
		return "", newError(KindUnauthorized, msgInvalidPassword, nil)
	}

	role, err := s.resolveRole(ctx, subject.Email)
	if err != nil {
		return "", internal(err)
	}

	principal := auth.NewPrincipal(subject.CN, subject.Email, subject.DN, role, s.clock.Now().Add(s.tokenTTL))
	span.SetAttributes(attribute.String(telemetry.AttrPrincipalRole, string(principal.Role())))
	return s.issue(principal)
}

func (s *iamService) LoginFederatedBegin(ctx context.Context) (string, error) {
	if s.deps.Broker == nil {
		return "", newError(KindNotFound, msgFederatedOff, nil)
	}
	url, err := s.deps.Broker.BeginFlow(ctx)
	if err != nil {
		return "", internal(fmt.Errorf("begin federated login: %w", err))
	}
	return url, nil
}

func (s *iamService) LoginFederatedComplete(ctx context.Context, code, state string) (token string, err error) {
	if s.deps.Broker == nil {
		return "", newError(KindNotFound, msgFederatedOff, nil)
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.LoginFederatedComplete",
		attribute.String(telemetry.AttrAuthMethod, methodFederated),
	)
	defer span.End()
	defer func() {
		s.record(ctx, methodFederated, err)
		telemetry.RecordError(span, err)
	}()

	if code == "" || state == "" {
		return "", newError(KindBadRequest, msgMissingParameter, nil)
	}

	principal, err := s.deps.Broker.CompleteFlow(ctx, code, state)
	if err != nil {
		return "", classifyFederated(err)
	}
	span.SetAttributes(attribute.String(telemetry.AttrPrincipalRole, string(principal.Role())))
	return s.issue(principal)
}

func classifyFederated(err error) *Error {
	switch {
	case errors.Is(err, federation.ErrInvalidState):
		return newError(KindBadRequest, msgInvalidState, err)
	case errors.Is(err, federation.ErrIncompleteIdentity):
		return newError(KindBadRequest, msgIncompleteID, err)
	case errors.Is(err, federation.ErrForbidden):
		return newError(KindForbidden, msgNotAllowed, err)
	default:
		return internal(fmt.Errorf("complete federated login: %w", err))
	}
}

func (s *iamService) ListAdmins(ctx context.Context) ([]string, error) {
	records, err := s.deps.Roles.ListAdmins(ctx)
	if err != nil {
		return nil, internal(err)
	}
	emails := make([]string, 0, len(records))
	for _, r := range records {
		emails = append(emails, r.Email)
	}
	return emails, nil
}

func (s *iamService) UpdateAdmins(ctx context.Context, actor auth.Principal, admins []string) (repository.AdminDiff, error) {
	if _, err := RequireAdmin(actor); err != nil {
		return repository.AdminDiff{}, err
	}
	diff, err := s.deps.Roles.ReplaceAdmins(ctx, actor.Email(), admins)
	if err != nil {
		return repository.AdminDiff{}, internal(err)
	}
	s.log.Infow("admin set updated",
		"actor", actor.Email(),
		"added", diff.Added,
		"removed", diff.Removed,
	)
	return diff, nil
}

func (s *iamService) Health(ctx context.Context) error {
	if err := s.deps.Directory.Ping(ctx); err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Health(ctx); err != nil {
			return fmt.Errorf("session cache: %w", err)
		}
	}
	return nil
}

func (s *iamService) Close() error {
	s.closeOnce.Do(func() {
		if s.deps.Cache != nil {
			s.closeErr = s.deps.Cache.Close()
		}
	})
	return s.closeErr
}

func (s *iamService) resolveRole(ctx context.Context, email string) (auth.Role, error) {
	role, found, err := s.deps.Roles.GetRole(ctx, email)
	if err != nil {
		return "", fmt.Errorf("resolve role for %s: %w", email, err)
	}
	if !found {
		return auth.RoleUser, nil
	}
	return role, nil
}

func (s *iamService) issue(p auth.Principal) (string, error) {
	token, err := s.deps.Codec.Issue(p)
	if err != nil {
		return "", internal(err)
	}
	return token, nil
}

func (s *iamService) record(ctx context.Context, method string, err error) {
	if s.deps.Recorder == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = AsError(err).Kind.String()
	}
	s.deps.Recorder.RecordLogin(ctx, method, outcome)
}
