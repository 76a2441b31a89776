// Package graph exposes the authentication operations over GraphQL.
package graph

import (
	"github.com/graphql-go/graphql"
)

var userType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"id":         &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"email":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"firstName":  &graphql.Field{Type: graphql.String},
		"lastName":   &graphql.Field{Type: graphql.String},
		"mfaEnabled": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
	},
})

var authPayloadType = graphql.NewObject(graphql.ObjectConfig{
	Name: "AuthPayload",
	Fields: graphql.Fields{
		"user":  &graphql.Field{Type: graphql.NewNonNull(userType)},
		"token": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
	},
})

var mfaSetupType = graphql.NewObject(graphql.ObjectConfig{
	Name: "MfaSetup",
	Fields: graphql.Fields{
		"secret":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"otpauthUrl": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"qrCode":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
	},
})

func requiredString() *graphql.ArgumentConfig {
	return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}
}

// NewSchema builds the executable schema around r.
func NewSchema(r *Resolver) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"me": &graphql.Field{Type: userType, Resolve: r.me},
		},
	})

	loginWithMFA := &graphql.Field{
		Type: graphql.NewNonNull(authPayloadType),
		Args: graphql.FieldConfigArgument{
			"email":    requiredString(),
			"password": requiredString(),
			"token":    requiredString(),
		},
		Resolve: r.loginWithMFA,
	}
	enableMFA := &graphql.Field{Type: graphql.NewNonNull(mfaSetupType), Resolve: r.enableMFA}
	verifyMFA := &graphql.Field{
		Type:    graphql.NewNonNull(graphql.Boolean),
		Args:    graphql.FieldConfigArgument{"token": requiredString()},
		Resolve: r.verifyMFA,
	}
	disableMFA := &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean), Resolve: r.disableMFA}

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"register": &graphql.Field{
				Type: graphql.NewNonNull(authPayloadType),
				Args: graphql.FieldConfigArgument{
					"firstName": requiredString(),
					"lastName":  requiredString(),
					"email":     requiredString(),
					"password":  requiredString(),
				},
				Resolve: r.register,
			},
			"login": &graphql.Field{
				Type: graphql.NewNonNull(authPayloadType),
				Args: graphql.FieldConfigArgument{
					"email":    requiredString(),
					"password": requiredString(),
				},
				Resolve: r.login,
			},
			"loginWithMfa": loginWithMFA,
			"enableMfa":    enableMFA,
			"verifyMfa":    verifyMFA,
			"disableMfa":   disableMFA,
			// Casing used by earlier clients.
			"loginWithMFA": loginWithMFA,
			"enableMFA":    enableMFA,
			"verifyMFA":    verifyMFA,
			"disableMFA":   disableMFA,
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
}
