package verisure

import "context"

// Session is an authenticated connection to a single installation
type Session interface {
	GetOverview(ctx context.Context) (*Overview, error)
	SetSmartPlugState(ctx context.Context, deviceLabel string, on bool) error
	Close() error
}

// Opener creates authenticated sessions
type Opener interface {
	Open(ctx context.Context, username, password string) (Session, error)
}

// WithSession opens a session, runs fn and closes the session again.
// Close failures are not returned; implementations log them.
func WithSession(ctx context.Context, opener Opener, username, password string, fn func(Session) error) error {
	session, err := opener.Open(ctx, username, password)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	return fn(session)
}
