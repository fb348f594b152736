// Package identity is the boundary to the external identity provider.
//
// The provider owns credentials and sessions; this application owns the
// account record. The package contributes three pieces:
//
//   - Identity, the verified session identity extracted from a bearer
//     token and placed in the request context by the auth middleware.
//   - OIDCVerifier, which validates bearer tokens against the provider's
//     OIDC issuer.
//   - Client, an HTTP client for the provider's admin API (provisioning,
//     password resets, session revocation) authenticated with the
//     client-credentials grant.
package identity
