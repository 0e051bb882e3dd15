package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pevans/substack2epub/browser"
	"github.com/pevans/substack2epub/browser/browsertest"
	"github.com/pevans/substack2epub/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signInPage = `<html><body>
<div class="substack-login__login-option">Sign in with password</div>
<input name="email"><input name="password">
<button class="substack-login__go-button">Continue</button>
</body></html>`

const homePage = `<html><body><div class="homepage-nav-user-indicator"></div></body></html>`

// Test helper: a fake whose submit button lands on homeHTML
func signInDriver(homeHTML string) *browsertest.Fake {
	drv := browsertest.New()
	drv.AddPage("https://substack.com/sign-in", signInPage)
	drv.AddPage("https://substack.com/home", homeHTML)
	drv.Redirects[".substack-login__go-button"] = "https://substack.com/home"
	return drv
}

// TestCredentials_Complete verifies both fields are needed
func TestCredentials_Complete(t *testing.T) {
	assert.True(t, Credentials{Email: "a@b.c", Password: "pw"}.Complete())
	assert.False(t, Credentials{Email: "a@b.c"}.Complete())
	assert.False(t, Credentials{Password: "pw"}.Complete())
	assert.False(t, Credentials{}.Complete())
}

// TestSignIn_Success verifies the form is filled and submitted
func TestSignIn_Success(t *testing.T) {
	drv := signInDriver(homePage)

	err := SignIn(context.Background(), drv, scraper.DefaultSelectors().SignIn,
		Credentials{Email: "reader@example.com", Password: "hunter2"}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", drv.Typed[`input[name="email"]`])
	assert.Equal(t, "hunter2", drv.Typed[`input[name="password"]`])
	assert.Equal(t, []string{".substack-login__login-option", ".substack-login__go-button"}, drv.Clicks)
}

// TestSignIn_NoIndicator verifies a missing indicator is fatal
func TestSignIn_NoIndicator(t *testing.T) {
	drv := signInDriver(`<html><body><p>Wrong password</p></body></html>`)

	err := SignIn(context.Background(), drv, scraper.DefaultSelectors().SignIn,
		Credentials{Email: "reader@example.com", Password: "wrong"}, time.Second)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignInFailed)
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.Len(t, drv.Visits, 2, "should not retry")
}

// TestSignIn_FormMissing verifies a changed sign-in page is reported
func TestSignIn_FormMissing(t *testing.T) {
	drv := browsertest.New()
	drv.AddPage("https://substack.com/sign-in", `<html><body></body></html>`)

	err := SignIn(context.Background(), drv, scraper.DefaultSelectors().SignIn,
		Credentials{Email: "reader@example.com", Password: "pw"}, time.Second)

	assert.ErrorIs(t, err, ErrSignInFailed)
	assert.Empty(t, drv.Clicks)
}
