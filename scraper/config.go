package scraper

import "errors"

// ErrElementNotFound is returned when a required element is missing from a
// rendered page. There is no fallback for it and the run is aborted.
var ErrElementNotFound = errors.New("required element not found")

// Selectors holds every CSS selector the crawler relies on. The defaults
// follow the hosting site's current markup; a config file may override any
// of them when the site changes.
type Selectors struct {
	Archive ArchiveConfig `yaml:"archive"`
	Post    PostConfig    `yaml:"post"`
	SignIn  SignInConfig  `yaml:"sign_in"`
}

// ArchiveConfig defines how to expand and read the archive listing.
type ArchiveConfig struct {
	Path                string `yaml:"path"` // Appended to the base URL
	BlogNameSelector    string `yaml:"blog_name_selector"`
	PlaceholderSelector string `yaml:"placeholder_selector"` // Shown while more items load
	PreviewSelector     string `yaml:"preview_selector"`
	TitleSelector       string `yaml:"title_selector"` // Also carries the href
	LockSelector        string `yaml:"lock_selector"`
}

// PostConfig defines how to extract content from a single post page.
type PostConfig struct {
	ContainerSelector string `yaml:"container_selector"`
	PaywallSelector   string `yaml:"paywall_selector"`
	TitleSelector     string `yaml:"title_selector"`
	SubtitleSelector  string `yaml:"subtitle_selector,omitempty"`
	DateSelector      string `yaml:"date_selector"`
	DateAttribute     string `yaml:"date_attribute"`
	LikesSelector     string `yaml:"likes_selector"`
	BodySelector      string `yaml:"body_selector"`
	ExcludeSelector   string `yaml:"exclude_selector"` // Body children to drop
}

// SignInConfig defines the sign-in form and the element that only shows up
// once a session is authenticated.
type SignInConfig struct {
	URL                 string `yaml:"url"`
	LoginOptionSelector string `yaml:"login_option_selector"`
	EmailSelector       string `yaml:"email_selector"`
	PasswordSelector    string `yaml:"password_selector"`
	SubmitSelector      string `yaml:"submit_selector"`
	SignedInSelector    string `yaml:"signed_in_selector"`
}

// DefaultSelectors returns the selectors for the hosting site as it renders
// today.
func DefaultSelectors() Selectors {
	return Selectors{
		Archive: ArchiveConfig{
			Path:                "/archive?sort=new",
			BlogNameSelector:    ".topbar .headline span.name",
			PlaceholderSelector: ".post-preview-silhouette",
			PreviewSelector:     ".post-preview",
			TitleSelector:       ".post-preview-title",
			LockSelector:        ".audience-lock",
		},
		Post: PostConfig{
			ContainerSelector: ".single-post",
			PaywallSelector:   `div[class*="paywall"]`,
			TitleSelector:     ".post-title",
			SubtitleSelector:  ".subtitle",
			DateSelector:      ".post-date",
			DateAttribute:     "title",
			LikesSelector:     ".like-count",
			BodySelector:      ".available-content .body",
			ExcludeSelector:   `[class*="subscribe-widget"]`,
		},
		SignIn: SignInConfig{
			URL:                 "https://substack.com/sign-in",
			LoginOptionSelector: ".substack-login__login-option",
			EmailSelector:       `input[name="email"]`,
			PasswordSelector:    `input[name="password"]`,
			SubmitSelector:      ".substack-login__go-button",
			SignedInSelector:    ".homepage-nav-user-indicator",
		},
	}
}

// Merge returns s with every empty field filled in from defaults. Config
// files only need to mention the selectors they change.
func (s Selectors) Merge(defaults Selectors) Selectors {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}

	a, da := s.Archive, defaults.Archive
	s.Archive = ArchiveConfig{
		Path:                pick(a.Path, da.Path),
		BlogNameSelector:    pick(a.BlogNameSelector, da.BlogNameSelector),
		PlaceholderSelector: pick(a.PlaceholderSelector, da.PlaceholderSelector),
		PreviewSelector:     pick(a.PreviewSelector, da.PreviewSelector),
		TitleSelector:       pick(a.TitleSelector, da.TitleSelector),
		LockSelector:        pick(a.LockSelector, da.LockSelector),
	}

	p, dp := s.Post, defaults.Post
	s.Post = PostConfig{
		ContainerSelector: pick(p.ContainerSelector, dp.ContainerSelector),
		PaywallSelector:   pick(p.PaywallSelector, dp.PaywallSelector),
		TitleSelector:     pick(p.TitleSelector, dp.TitleSelector),
		SubtitleSelector:  pick(p.SubtitleSelector, dp.SubtitleSelector),
		DateSelector:      pick(p.DateSelector, dp.DateSelector),
		DateAttribute:     pick(p.DateAttribute, dp.DateAttribute),
		LikesSelector:     pick(p.LikesSelector, dp.LikesSelector),
		BodySelector:      pick(p.BodySelector, dp.BodySelector),
		ExcludeSelector:   pick(p.ExcludeSelector, dp.ExcludeSelector),
	}

	si, dsi := s.SignIn, defaults.SignIn
	s.SignIn = SignInConfig{
		URL:                 pick(si.URL, dsi.URL),
		LoginOptionSelector: pick(si.LoginOptionSelector, dsi.LoginOptionSelector),
		EmailSelector:       pick(si.EmailSelector, dsi.EmailSelector),
		PasswordSelector:    pick(si.PasswordSelector, dsi.PasswordSelector),
		SubmitSelector:      pick(si.SubmitSelector, dsi.SubmitSelector),
		SignedInSelector:    pick(si.SignedInSelector, dsi.SignedInSelector),
	}

	return s
}
