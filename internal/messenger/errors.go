package messenger

import "errors"

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotInitialized   = errors.New("browser not initialized")
	ErrBrowserInit      = errors.New("failed to initialize browser")
	ErrSessionActive    = errors.New("session already active")
	ErrPageBusy         = errors.New("page busy")

	ErrSearchInputNotFound  = errors.New("search input not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrMessageInputNotFound = errors.New("message input not found")
	ErrSendButtonNotFound   = errors.New("send button not found")
)

// retryable reports whether another attempt at the same recipient could
// succeed.
func retryable(err error) bool {
	return !errors.Is(err, ErrNotAuthenticated) && !errors.Is(err, ErrNotInitialized)
}
