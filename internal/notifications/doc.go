// Package notifications delivers run summaries to WeCom (enterprise WeChat).
//
// A Provider owns the HTTP client and the access-token cache; For returns a
// Service bound to one set of application credentials, or a no-op Service
// when the credentials are incomplete. Callers depend only on the Service
// interface.
package notifications
