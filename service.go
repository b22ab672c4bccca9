package authkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/planora/authkit/password"
	"github.com/planora/authkit/revocation"
	"github.com/planora/authkit/token"
)

// Service defines a public type used by authkit APIs.
//
// Service instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Service struct {
	config      Config
	store       UserStore
	hasher      *password.Hasher
	tokens      tokenManager
	revocations *revocation.Store
	audit       *auditDispatcher
	metrics     *Metrics
	now         func() time.Time
}

// tokenManager is the slice of [token.Manager] the Service depends on.
type tokenManager interface {
	Issue(userID, sessionID string, kind token.Kind) (token.Token, error)
	Validate(tokenStr string, kind token.Kind) (*token.Claims, error)
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) Close() {
	if s == nil {
		return
	}
	if s.audit != nil {
		s.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) AuditDropped() uint64 {
	if s == nil || s.audit == nil {
		return 0
	}
	return s.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

func (s *Service) metricInc(id MetricID) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.Inc(id)
}

// Register creates an account and logs it in: validates the request fields,
// normalizes the email, rejects duplicates, hashes the password, persists
// the record, and issues a fresh token pair. The returned payload carries a
// [UserView] that never includes the password hash.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthPayload, error) {
	if s == nil || s.store == nil || s.hasher == nil {
		return nil, ErrServiceNotReady
	}

	if err := ValidateRegistration(req); err != nil {
		s.metricInc(MetricRegisterFailure)
		return nil, err
	}

	email := NormalizeEmail(req.Email)

	_, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		s.metricInc(MetricRegisterDuplicate)
		s.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrDuplicateIdentity, func() map[string]string {
			return map[string]string{
				"email": email,
			}
		})
		return nil, ErrDuplicateIdentity
	case errors.Is(err, ErrStoreUserNotFound):
		// Free to create.
	default:
		s.metricInc(MetricRegisterFailure)
		s.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "store_lookup_failed",
			}
		})
		return nil, fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.metricInc(MetricRegisterFailure)
		return nil, fmt.Errorf("%w: password hash: %v", ErrInternal, err)
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	now := s.now()
	record, err := s.store.CreateUser(ctx, UserRecord{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Timezone:     timezone,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, ErrStoreDuplicateEmail) {
			// Lost the race against a concurrent registration for the same email.
			s.metricInc(MetricRegisterDuplicate)
			s.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrDuplicateIdentity, nil)
			return nil, ErrDuplicateIdentity
		}
		s.metricInc(MetricRegisterFailure)
		s.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "store_create_failed",
			}
		})
		return nil, fmt.Errorf("%w: user create: %v", ErrInternal, err)
	}

	payload, sessionID, err := s.issuePair(ctx, record)
	if err != nil {
		s.metricInc(MetricRegisterFailure)
		return nil, err
	}

	s.metricInc(MetricRegisterSuccess)
	s.emitAudit(ctx, auditEventRegisterSuccess, true, record.UserID, sessionID, nil, nil)

	return payload, nil
}

// Authenticate verifies email and password and issues a fresh token pair.
// An unknown email and a wrong password produce the same
// [ErrInvalidCredentials] so callers cannot enumerate registered accounts.
func (s *Service) Authenticate(ctx context.Context, email, plaintext string) (*AuthPayload, error) {
	if s == nil || s.store == nil || s.hasher == nil {
		return nil, ErrServiceNotReady
	}

	if err := ValidateLoginCredentials(email, plaintext); err != nil {
		s.metricInc(MetricLoginFailure)
		return nil, err
	}

	normalized := NormalizeEmail(email)

	user, err := s.store.GetUserByEmail(ctx, normalized)
	if err != nil {
		s.metricInc(MetricLoginFailure)
		if errors.Is(err, ErrStoreUserNotFound) {
			s.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{
					"reason": "user_not_found",
				}
			})
			return nil, ErrInvalidCredentials
		}
		s.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "store_lookup_failed",
			}
		})
		return nil, fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		s.metricInc(MetricLoginFailure)
		s.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if s.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := s.hasher.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := s.hasher.Hash(plaintext); err == nil {
				// Rehash update is best-effort and must not block successful login.
				if err := s.store.UpdatePasswordHash(ctx, user.UserID, upgradedHash); err != nil {
					log.Print("authkit: password hash upgrade update failed")
				}
			} else {
				log.Print("authkit: password hash upgrade generation failed")
			}
		}
	}
	plaintext = ""

	payload, sessionID, err := s.issuePair(ctx, user)
	if err != nil {
		s.metricInc(MetricLoginFailure)
		return nil, err
	}

	s.metricInc(MetricLoginSuccess)
	s.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, sessionID, nil, nil)

	return payload, nil
}

// Refresh exchanges a refresh token for a brand-new pair bound to the same
// user. With a revocation registry wired, the presented token is single-use:
// replaying a spent one returns [ErrRefreshReuse] and kills the session.
// Without a registry, validity is signature and expiry alone (stateless).
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthPayload, error) {
	if s == nil || s.store == nil || s.tokens == nil {
		return nil, ErrServiceNotReady
	}

	claims, err := s.tokens.Validate(refreshToken, token.KindRefresh)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "token_validation_failed",
			}
		})
		return nil, ErrRefreshInvalid
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrStoreUserNotFound) {
			s.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, claims.SID, ErrRefreshInvalid, func() map[string]string {
				return map[string]string{
					"reason": "user_not_found",
				}
			})
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}

	// Both tokens are signed before the registry advances; a signing
	// failure must leave the presented refresh token usable.
	next, err := s.tokens.Issue(user.UserID, claims.SID, token.KindRefresh)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: issue refresh: %v", ErrInternal, err)
	}

	access, err := s.tokens.Issue(user.UserID, claims.SID, token.KindAccess)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: issue access: %v", ErrInternal, err)
	}

	if s.revocations != nil {
		err := s.revocations.Rotate(ctx, claims.SID, claims.ID, next.ID, s.config.Token.RefreshTTL)
		switch {
		case err == nil:
		case errors.Is(err, revocation.ErrReuseDetected):
			s.metricInc(MetricRefreshReuseDetected)
			s.metricInc(MetricSessionRevoked)
			s.emitAudit(ctx, auditEventRefreshReuse, false, user.UserID, claims.SID, ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, revocation.ErrSessionRevoked), errors.Is(err, revocation.ErrSessionUnknown):
			s.metricInc(MetricRefreshFailure)
			s.emitAudit(ctx, auditEventRefreshInvalid, false, user.UserID, claims.SID, err, func() map[string]string {
				return map[string]string{
					"reason": "registry_rejected",
				}
			})
			return nil, ErrRefreshInvalid
		case errors.Is(err, revocation.ErrUnavailable):
			s.metricInc(MetricRefreshFailure)
			return nil, ErrRevocationUnavailable
		default:
			s.metricInc(MetricRefreshFailure)
			return nil, fmt.Errorf("%w: rotate refresh: %v", ErrInternal, err)
		}
	}

	s.metricInc(MetricRefreshSuccess)
	s.emitAudit(ctx, auditEventRefreshSuccess, true, user.UserID, claims.SID, nil, nil)

	return buildPayload(user, access, next), nil
}

// ValidateToken verifies an access token and extracts the caller identity.
// Expired tokens return [ErrTokenExpired]; every other validation failure
// wraps [ErrTokenInvalid] with the underlying reason. The check is pure
// unless a revocation registry is wired, in which case a revoked session id
// also rejects and a registry outage fails closed with
// [ErrRevocationUnavailable].
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (*Identity, error) {
	if s == nil || s.tokens == nil {
		return nil, ErrServiceNotReady
	}
	if s.metrics != nil && s.metrics.LatencyEnabled() {
		start := time.Now()
		defer s.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	claims, err := s.tokens.Validate(accessToken, token.KindAccess)
	if err != nil {
		s.metricInc(MetricValidateFailure)
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.SID)
		if err != nil {
			s.metricInc(MetricValidateFailure)
			return nil, ErrRevocationUnavailable
		}
		if revoked {
			s.metricInc(MetricValidateFailure)
			return nil, fmt.Errorf("%w: session revoked", ErrTokenInvalid)
		}
	}

	s.metricInc(MetricValidateSuccess)
	return &Identity{
		UserID:    claims.Subject,
		SessionID: claims.SID,
	}, nil
}

// Logout ends the session identified by the access token. The default is a
// client-local discard: the server forgets nothing because it stored
// nothing. With a revocation registry wired, the session id is revoked for
// the remaining refresh lifetime, so both halves of the pair die early.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if s == nil || s.tokens == nil {
		return ErrServiceNotReady
	}

	claims, err := s.tokens.Validate(accessToken, token.KindAccess)
	if err != nil {
		s.emitAudit(ctx, auditEventLogout, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_access_token",
			}
		})
		if errors.Is(err, token.ErrExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if s.revocations != nil {
		if err := s.revocations.Revoke(ctx, claims.SID, s.config.Token.RefreshTTL); err != nil {
			s.emitAudit(ctx, auditEventLogout, false, claims.Subject, claims.SID, err, nil)
			return ErrRevocationUnavailable
		}
		s.metricInc(MetricSessionRevoked)
	}

	s.metricInc(MetricLogout)
	s.emitAudit(ctx, auditEventLogout, true, claims.Subject, claims.SID, nil, nil)

	return nil
}

// User looks up the user view for an authenticated identity. Used by the
// HTTP surface to serve profile reads; absent accounts map to
// [ErrUserNotFound].
func (s *Service) User(ctx context.Context, userID string) (UserView, error) {
	if s == nil || s.store == nil {
		return UserView{}, ErrServiceNotReady
	}

	record, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStoreUserNotFound) {
			return UserView{}, ErrUserNotFound
		}
		return UserView{}, fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}

	return viewOf(record), nil
}

func (s *Service) issuePair(ctx context.Context, user UserRecord) (*AuthPayload, string, error) {
	sessionID := uuid.NewString()

	access, err := s.tokens.Issue(user.UserID, sessionID, token.KindAccess)
	if err != nil {
		return nil, "", fmt.Errorf("%w: issue access: %v", ErrInternal, err)
	}

	refresh, err := s.tokens.Issue(user.UserID, sessionID, token.KindRefresh)
	if err != nil {
		return nil, "", fmt.Errorf("%w: issue refresh: %v", ErrInternal, err)
	}

	if s.revocations != nil {
		if err := s.revocations.Bind(ctx, sessionID, refresh.ID, s.config.Token.RefreshTTL); err != nil {
			return nil, "", ErrRevocationUnavailable
		}
	}

	return buildPayload(user, access, refresh), sessionID, nil
}

func buildPayload(user UserRecord, access, refresh token.Token) *AuthPayload {
	return &AuthPayload{
		User: viewOf(user),
		Token: TokenPair{
			AccessToken:  access.Value,
			RefreshToken: refresh.Value,
			ExpiresAt:    access.ExpiresAt,
			UserID:       user.UserID,
		},
	}
}
