/*
Package authsdk provides a client SDK for the storefront identity service.

# SDKClient vs Session

  - SDKClient: unauthenticated operations (register, login, one-time codes,
    password reset) and session creation
  - Session: authenticated operations with automatic token refresh

Create an SDKClient, optionally bound to a store:

	client := authsdk.NewSDKClient("https://id.example.com").ForStore("shop.example.com")

	_, err := client.Register(ctx, authsdk.RegisterRequest{Email: email, Password: pw})
	err = client.VerifyOTP(ctx, email, codeFromEmail, "")

	session, err := client.AuthenticateWithPassword(ctx, email, pw)

Use the Session for everything that needs an access token:

	me, err := session.Me(ctx)
	store, err := session.CurrentStore(ctx)
	members, err := session.ListMembers(ctx)

# Automatic Token Refresh

Access tokens are refreshed 30 seconds before they expire. Refresh tokens
are single use: the server treats a second presentation of a spent token as
theft and revokes the whole session. A Session serializes its refreshes so
that goroutines sharing it never race each other into that state. Do not
share a refresh token between two Sessions.

# Error Handling

Failed responses are returned as *APIError carrying the HTTP status and a
stable code:

	err := client.VerifyOTP(ctx, email, code, "")
	switch {
	case authsdk.IsCode(err, authsdk.ErrorCodeOTPExpired):
		_, err = client.ResendOTP(ctx, email, "")
	case authsdk.IsCode(err, authsdk.ErrorCodeOTPLocked):
		// too many wrong guesses, request a new code
	}

Rate limited and resend-cooldown responses set APIError.RetryAfter.

# Thread Safety

Sessions are safe for concurrent use.
*/
package authsdk
