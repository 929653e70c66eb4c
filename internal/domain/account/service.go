package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/auth"
	"github.com/imssbienestar/medicos/internal/platform/db"
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong
// password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("incorrect username or password")

const (
	ActionCreateUser     = "CREATE_USER"
	ActionDeleteUser     = "DELETE_USER"
	ActionResetPassword  = "RESET_PASSWORD"
	ActionChangePassword = "CHANGE_PASSWORD"
)

type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

type Issuer interface {
	Issue(userID, username, role string) (string, *auth.Claims, error)
	TTL() time.Duration
}

type AuditLogger interface {
	Log(ctx context.Context, action, entityType, entityID, details string) error
}

type Service struct {
	repo    Repository
	tx      db.TxRunner
	hasher  Hasher
	issuer  Issuer
	revoker auth.RevocationStore
	audit   AuditLogger
}

func NewService(repo Repository, tx db.TxRunner, hasher Hasher, issuer Issuer, revoker auth.RevocationStore, audit AuditLogger) *Service {
	return &Service{repo: repo, tx: tx, hasher: hasher, issuer: issuer, revoker: revoker, audit: audit}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, apperr.Validation("username and password are required")
	}
	if !auth.ValidRole(req.Role) {
		return nil, apperr.Validation("role must be one of admin, user, readonly")
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	u := &User{
		Username:           req.Username,
		HashedPassword:     hash,
		Role:               req.Role,
		MustChangePassword: true,
	}
	if req.MustChangePassword != nil {
		u.MustChangePassword = *req.MustChangePassword
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, u); err != nil {
			return err
		}
		return s.audit.Log(ctx, ActionCreateUser, "user", strconv.FormatInt(u.ID, 10),
			fmt.Sprintf("username=%s role=%s", u.Username, u.Role))
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Me returns the account behind ctx.
func (s *Service) Me(ctx context.Context) (*User, error) {
	id, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func callerID(ctx context.Context) (int64, error) {
	id, err := strconv.ParseInt(auth.UserIDFromContext(ctx), 10, 64)
	if err != nil {
		return 0, apperr.Forbidden("no authenticated user")
	}
	return id, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	self, err := callerID(ctx)
	if err == nil && self == id {
		return apperr.Validation("you cannot delete your own account")
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.audit.Log(ctx, ActionDeleteUser, "user", strconv.FormatInt(id, 10), "username="+u.Username)
	})
}

// ResetPassword sets a new password chosen by an admin and forces the user
// to change it at next login.
func (s *Service) ResetPassword(ctx context.Context, id int64, req *ResetPasswordRequest) error {
	if len(req.NewPassword) < 8 {
		return apperr.Validation("new_password must be at least 8 characters")
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return apperr.Internal("hash password", err)
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdatePassword(ctx, id, hash, true); err != nil {
			return err
		}
		return s.audit.Log(ctx, ActionResetPassword, "user", strconv.FormatInt(id, 10), "")
	})
}

// ChangePassword replaces the caller's own password and revokes the token
// used for the request, so the client has to log in again.
func (s *Service) ChangePassword(ctx context.Context, req *ChangePasswordRequest) error {
	u, err := s.Me(ctx)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(u.HashedPassword, req.CurrentPassword) {
		return apperr.Validation("current password is incorrect")
	}
	if len(req.NewPassword) < 8 {
		return apperr.Validation("new_password must be at least 8 characters")
	}
	if req.NewPassword == req.CurrentPassword {
		return apperr.Validation("new password must differ from the current one")
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return apperr.Internal("hash password", err)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdatePassword(ctx, u.ID, hash, false); err != nil {
			return err
		}
		return s.audit.Log(ctx, ActionChangePassword, "user", strconv.FormatInt(u.ID, 10), "")
	})
	if err != nil {
		return err
	}
	return s.Logout(ctx)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(u.HashedPassword, req.Password) {
		return nil, ErrInvalidCredentials
	}

	token, _, err := s.issuer.Issue(strconv.FormatInt(u.ID, 10), u.Username, u.Role)
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	return &TokenResponse{
		AccessToken:        token,
		TokenType:          "bearer",
		ExpiresIn:          int(s.issuer.TTL().Seconds()),
		Username:           u.Username,
		Role:               u.Role,
		MustChangePassword: u.MustChangePassword,
	}, nil
}

// Logout revokes the token that authenticated ctx until it would have
// expired anyway.
func (s *Service) Logout(ctx context.Context) error {
	jti, exp := auth.TokenFromContext(ctx)
	if jti == "" {
		return nil
	}
	if err := s.revoker.Revoke(ctx, jti, auth.UserIDFromContext(ctx), exp); err != nil {
		return apperr.Internal("revoke token", err)
	}
	return nil
}
