// Package auth signs a browser session in so paywalled posts render in
// full.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pevans/substack2epub/browser"
	"github.com/pevans/substack2epub/scraper"
)

// ErrSignInFailed is returned when the signed-in indicator never appears.
var ErrSignInFailed = errors.New("sign-in failed")

// Credentials for a subscriber account.
type Credentials struct {
	Email    string
	Password string
}

// Complete reports whether both fields are set. Sign-in is skipped
// otherwise.
func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}

// SignIn fills in the password login form and waits up to timeout for the
// signed-in indicator. It is not retried.
func SignIn(ctx context.Context, drv browser.Driver, sel scraper.SignInConfig, creds Credentials, timeout time.Duration) error {
	slog.Info("signing in", "email", creds.Email)

	if err := drv.Navigate(ctx, sel.URL); err != nil {
		return err
	}

	steps := []struct {
		what string
		do   func() error
	}{
		{"choose password login", func() error { return drv.Click(ctx, sel.LoginOptionSelector) }},
		{"enter email", func() error { return drv.Type(ctx, sel.EmailSelector, creds.Email) }},
		{"enter password", func() error { return drv.Type(ctx, sel.PasswordSelector, creds.Password) }},
		{"submit", func() error { return drv.Click(ctx, sel.SubmitSelector) }},
	}
	for _, step := range steps {
		if err := step.do(); err != nil {
			return fmt.Errorf("%w: failed to %s: %w", ErrSignInFailed, step.what, err)
		}
	}

	if err := drv.WaitPresent(ctx, sel.SignedInSelector, timeout); err != nil {
		return fmt.Errorf("%w: never saw the signed-in indicator: %w", ErrSignInFailed, err)
	}

	slog.Info("signed in")
	return nil
}
