/*
Package authsdk owns the client-side session: logging in and out, keeping
the access token valid across concurrent requests, and telling the UI when
the user's role changes.

# Session and Coordinator

A Session is the application-facing side. It reports authentication state,
performs login, registration and logout, and fans role changes out to
subscribers:

	sess, err := authsdk.New(authsdk.Config{
		HTTP:      api,    // the shared *httpx.Client
		Store:     mirror, // *credstore.Mirror
		Navigator: nav,
	})
	if err := sess.Restore(ctx); err != nil {
		log.Warn("restore session", "err", err)
	}

	if err := sess.Login(ctx, authsdk.Credentials{Username: "alice", Password: "secret1"}); err != nil {
		if errors.Is(err, authsdk.ErrInvalidCredentials) {
			// show inline error
		}
	}

	unsubscribe := sess.OnRoleChange(func(ev authsdk.RoleChangeEvent) {
		fmt.Println(ev.OldRole, "->", ev.NewRole)
	})
	defer unsubscribe()

New installs the session's Coordinator as the Recoverer of the shared HTTP
client. The Coordinator is a small state machine (IDLE, REFRESHING,
LOGGED_OUT) that turns every 401 seen during one expiry window into a single
POST /refresh, then replays each waiting request once with the new token.
Install the same Coordinator on every other client that talks to the API:

	other.SetRecoverer(sess.Coordinator())

# Failure

A failed refresh ends the session: credentials are removed, the Navigator is
sent to the login route, and every waiting request fails with an error
matching ErrRefreshExhausted. Logging out while a refresh is in flight wins;
the late refresh result is discarded.
*/
package authsdk
