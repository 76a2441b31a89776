package graph

import (
	"context"
	"log/slog"

	"github.com/graphql-go/graphql"

	"github.com/congo-pay/authgraph/internal/auth"
	"github.com/congo-pay/authgraph/internal/autherr"
	"github.com/congo-pay/authgraph/internal/identity"
	"github.com/congo-pay/authgraph/internal/mfa"
)

// Resolver wires GraphQL fields to the identity, MFA and token services.
type Resolver struct {
	users  *identity.Service
	mfa    *mfa.Manager
	tokens *auth.Issuer
	logger *slog.Logger
}

// NewResolver creates the root resolver.
func NewResolver(users *identity.Service, mfaManager *mfa.Manager, tokens *auth.Issuer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{users: users, mfa: mfaManager, tokens: tokens, logger: logger}
}

func (r *Resolver) me(p graphql.ResolveParams) (interface{}, error) {
	user, ok := identity.UserFrom(p.Context)
	if !ok {
		return nil, nil
	}
	return userPayload(user), nil
}

func (r *Resolver) register(p graphql.ResolveParams) (interface{}, error) {
	user, err := r.users.Register(p.Context, identity.RegisterInput{
		FirstName: stringArg(p, "firstName"),
		LastName:  stringArg(p, "lastName"),
		Email:     stringArg(p, "email"),
		Password:  stringArg(p, "password"),
	})
	if err != nil {
		return nil, err
	}
	return r.authPayload(p.Context, user)
}

func (r *Resolver) login(p graphql.ResolveParams) (interface{}, error) {
	user, err := r.users.Login(p.Context, stringArg(p, "email"), stringArg(p, "password"))
	if err != nil {
		return nil, err
	}
	return r.authPayload(p.Context, user)
}

func (r *Resolver) loginWithMFA(p graphql.ResolveParams) (interface{}, error) {
	user, err := r.users.LoginWithMFA(p.Context, stringArg(p, "email"), stringArg(p, "password"), stringArg(p, "token"))
	if err != nil {
		return nil, err
	}
	return r.authPayload(p.Context, user)
}

func (r *Resolver) enableMFA(p graphql.ResolveParams) (interface{}, error) {
	user, err := currentUser(p.Context)
	if err != nil {
		return nil, err
	}
	enrollment, err := r.mfa.Enroll(user)
	if err != nil {
		r.logger.ErrorContext(p.Context, "mfa enrollment", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, autherr.ErrMFAEnableFailed
	}
	if _, err := r.mfa.ConfirmEnable(p.Context, user.ID, enrollment.Secret); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"secret":     enrollment.Secret,
		"otpauthUrl": enrollment.URI,
		"qrCode":     enrollment.QRCode,
	}, nil
}

func (r *Resolver) verifyMFA(p graphql.ResolveParams) (interface{}, error) {
	user, err := currentUser(p.Context)
	if err != nil {
		return nil, err
	}
	if err := r.mfa.VerifyUser(p.Context, user.ID, stringArg(p, "token")); err != nil {
		return nil, err
	}
	return true, nil
}

func (r *Resolver) disableMFA(p graphql.ResolveParams) (interface{}, error) {
	user, err := currentUser(p.Context)
	if err != nil {
		return nil, err
	}
	if _, err := r.mfa.Disable(p.Context, user.ID); err != nil {
		return nil, err
	}
	return true, nil
}

func (r *Resolver) authPayload(ctx context.Context, user identity.Profile) (interface{}, error) {
	token, err := r.tokens.Issue(user.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "issue token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, autherr.ErrInternal
	}
	return map[string]interface{}{
		"user":  userPayload(user),
		"token": token,
	}, nil
}

func currentUser(ctx context.Context) (identity.Profile, error) {
	user, ok := identity.UserFrom(ctx)
	if !ok {
		return identity.Profile{}, autherr.ErrAuthenticationRequired
	}
	return user, nil
}

func userPayload(u identity.Profile) map[string]interface{} {
	return map[string]interface{}{
		"id":         u.ID,
		"email":      u.Email,
		"firstName":  u.FirstName,
		"lastName":   u.LastName,
		"mfaEnabled": u.MFAEnabled,
	}
}

func stringArg(p graphql.ResolveParams, name string) string {
	s, _ := p.Args[name].(string)
	return s
}
